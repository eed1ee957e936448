package domain

// Session is the signed-in user's credential state kept by the client.
type Session struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	UserID       int64    `json:"user_id"`
	Role         UserRole `json:"role"`
	Name         string   `json:"name,omitempty"`
}

func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

func (s Session) Actor() Actor {
	return Actor{UserID: s.UserID, Role: s.Role}
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
