package ports

import "errors"

var ErrNotFound = errors.New("not found")

// ErrTransient marque un échec réseau passager (DNS, connexion coupée).
// Les cycles de découverte sautent silencieusement l'item concerné et
// réessaieront au cycle suivant.
var ErrTransient = errors.New("transient network failure")
