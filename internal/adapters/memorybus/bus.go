package memorybus

import (
	"sync"

	"chzzk-archiver/internal/ports"
)

type Bus struct {
	mu    sync.Mutex
	subs  map[chan ports.Event]struct{}
	rsubs map[*reliableSub]struct{}
	alive bool
}

func New() *Bus {
	return &Bus{
		subs:  make(map[chan ports.Event]struct{}),
		rsubs: make(map[*reliableSub]struct{}),
		alive: true,
	}
}

func (b *Bus) Publish(evt ports.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// drop si le client est trop lent
		}
	}
	for s := range b.rsubs {
		s.push(evt)
	}
}

// Subscribe livre au mieux: un abonné trop lent perd des événements. C'est
// le mode voulu pour les miroirs (SSE, compteurs), jamais pour la
// comptabilité des registres.
func (b *Bus) Subscribe() (<-chan ports.Event, func()) {
	ch := make(chan ports.Event, 64)
	b.mu.Lock()
	if !b.alive {
		close(ch)
		b.mu.Unlock()
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, cancel
}

// SubscribeReliable livre chaque événement publié, dans l'ordre, sans
// jamais en perdre: Publish empile dans une file non bornée et une
// goroutine de pompage pousse vers l'abonné à son rythme. À utiliser pour
// les consommateurs qui tiennent un état à partir des événements.
func (b *Bus) SubscribeReliable() (<-chan ports.Event, func()) {
	s := &reliableSub{
		out:  make(chan ports.Event, 16),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
	b.mu.Lock()
	if !b.alive {
		b.mu.Unlock()
		close(s.out)
		return s.out, func() {}
	}
	b.rsubs[s] = struct{}{}
	b.mu.Unlock()
	go s.pump()

	cancel := func() {
		b.mu.Lock()
		delete(b.rsubs, s)
		b.mu.Unlock()
		s.stop()
	}

	return s.out, cancel
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.alive {
		return
	}
	b.alive = false
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
	for s := range b.rsubs {
		s.stop()
	}
	b.rsubs = nil
}

type reliableSub struct {
	mu      sync.Mutex
	pending []ports.Event
	wake    chan struct{}
	quit    chan struct{}
	once    sync.Once
	out     chan ports.Event
}

func (s *reliableSub) push(evt ports.Event) {
	s.mu.Lock()
	s.pending = append(s.pending, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *reliableSub) stop() {
	s.once.Do(func() { close(s.quit) })
}

func (s *reliableSub) pump() {
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()

		for _, evt := range batch {
			select {
			case s.out <- evt:
			case <-s.quit:
				close(s.out)
				return
			}
		}

		select {
		case <-s.wake:
		case <-s.quit:
			close(s.out)
			return
		}
	}
}
