package credentials

import "time"

// Credentials is the access/refresh token pair issued on login or OTP
// verification and rotated as a pair on every successful refresh.
type Credentials struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"` // access token expiry, informational only
}

// Empty reports whether the credentials carry no usable access token.
func (c *Credentials) Empty() bool {
	return c == nil || c.AccessToken == ""
}

// UserProfile is the user record returned by the backend alongside tokens.
// It is cached for display purposes and never consulted for authorization
// decisions, so it stays an opaque bag of fields.
type UserProfile map[string]any
