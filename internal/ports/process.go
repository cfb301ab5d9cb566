package ports

// ProcessHandle expose le cycle de vie d'un process externe détaché.
// Pas d'annulation coopérative: la vie du process n'est bornée que par
// l'outil externe lui-même.
type ProcessHandle interface {
	PID() int
	// Done est fermé à la sortie du process.
	Done() <-chan struct{}
	// Err renvoie l'erreur de sortie, valide après la fermeture de Done.
	Err() error
}

// ProcessLauncher spawne une ligne de commande shell en process détaché.
// Peut être invoqué de nombreuses fois en parallèle.
type ProcessLauncher interface {
	Launch(command string) (ProcessHandle, error)
}

// ProcessProber teste si un pid est encore vivant (utilisé au boot pour
// réconcilier le registre d'enregistrement avec la réalité).
type ProcessProber interface {
	Alive(pid int) bool
}
