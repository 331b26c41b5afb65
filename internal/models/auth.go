package models

// OAuthClientConfig identifies this service to the auth collaborator when
// requesting machine-to-machine tokens (used for profile service reads).
type OAuthClientConfig struct {
	IssuerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
}

type M2MTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}
