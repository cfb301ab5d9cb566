package domain

// Credential porte la paire de cookies Naver nécessaire aux contenus adultes.
// Persistée en texte sur deux lignes (NID_AUT puis NID_SES), pas en JSON.
type Credential struct {
	Auth    string `json:"auth"`
	Session string `json:"session"`
}

func (c Credential) Complete() bool {
	return c.Auth != "" && c.Session != ""
}
