package domain

// TokenType is the class of a session token.
type TokenType string

const (
	// TokenTypeAccess authorizes individual API requests.
	TokenTypeAccess TokenType = "access"
	// TokenTypeRefresh is exchanged for a new access/refresh pair.
	TokenTypeRefresh TokenType = "refresh"
)

// Valid reports whether t is a known token class.
func (t TokenType) Valid() bool {
	return t == TokenTypeAccess || t == TokenTypeRefresh
}

// SessionClaims identifies who a token represents, which class of token it
// is, and when it was minted. Claims are immutable once embedded in a token.
type SessionClaims struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Type      TokenType `json:"type"`
	Timestamp int64     `json:"timestamp"` // issued-at, unix milliseconds
}

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// TokenPair is the access/refresh pair returned on login, registration and
// refresh. ExpiresIn values are seconds.
type TokenPair struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	AccessExpiresIn  int64  `json:"accessExpiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
}

// EncryptionKey is an ephemeral symmetric key handed to a client so it can
// encrypt a password before sending it.
type EncryptionKey struct {
	KeyID     string `json:"keyId"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"`
}
