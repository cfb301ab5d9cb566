// Package procexec spawne les commandes de capture/téléchargement en
// process détachés et sonde la vivacité des pids hérités d'une instance
// précédente.
package procexec

import (
	"errors"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"chzzk-archiver/internal/ports"
)

type Launcher struct {
	logger zerolog.Logger
}

func NewLauncher(logger zerolog.Logger) *Launcher {
	return &Launcher{logger: logger.With().Str("component", "launcher").Logger()}
}

// Launch démarre la commande via le shell, dans sa propre session pour
// qu'elle survive à l'arrêt de l'agent. Pas de contexte: la vie du process
// n'est jamais bornée par l'agent.
func (l *Launcher) Launch(command string) (ports.ProcessHandle, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &handle{pid: cmd.Process.Pid, done: make(chan struct{})}
	go func() {
		h.err = cmd.Wait()
		close(h.done)
	}()

	l.logger.Debug().Int("pid", h.pid).Str("cmd", command).Msg("process spawned")
	return h, nil
}

type handle struct {
	pid  int
	done chan struct{}
	err  error
}

func (h *handle) PID() int              { return h.pid }
func (h *handle) Done() <-chan struct{} { return h.done }

func (h *handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Prober teste la vivacité d'un pid par signal 0. EPERM signifie que le
// process existe mais appartient à un autre utilisateur: vivant.
type Prober struct{}

func (Prober) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}
