package oauth

// TokenResponse is the provider's token endpoint payload. LeadConnector adds
// the location and user the grant was issued for.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope,omitempty"`
	LocationID   string `json:"locationId,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
)
