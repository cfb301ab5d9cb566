package domain

import "strings"

// RosterEntry décrit un créateur suivi. Le roster est édité hors process
// (users.json) et n'est jamais modifié par l'agent.
type RosterEntry struct {
	ChannelID   string `json:"channelId"`
	Username    string `json:"username"`
	ChannelName string `json:"channelName"`

	DisableRecord bool `json:"disableRecord"`

	// AllowCategory: liste blanche de catégories live. Vide = tout autorisé.
	AllowCategory []string `json:"allowCategory"`

	EnableAutoDownloadVod bool `json:"enableAutoDownloadVod"`
}

// Roster est indexé par channelId.
type Roster map[string]RosterEntry

// CategoryAllowed applique la liste blanche: match par sous-chaîne,
// insensible à la casse. Une catégorie vide côté plateforme est autorisée.
func (e RosterEntry) CategoryAllowed(category string) bool {
	if len(e.AllowCategory) == 0 || category == "" {
		return true
	}
	current := strings.ToLower(category)
	for _, allowed := range e.AllowCategory {
		if strings.Contains(current, strings.ToLower(allowed)) {
			return true
		}
	}
	return false
}
