package ports

import "context"

// DurationProber lit la durée (en secondes) d'un fichier média.
// Échoue si le fichier est illisible ou n'est pas un conteneur valide.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}
