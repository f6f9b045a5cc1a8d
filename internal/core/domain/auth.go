package domain

// LoginRequest carries an email and a password encrypted with the ephemeral
// key identified by KeyID.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	KeyID    string `json:"keyId" binding:"required"`
}

// RegisterRequest carries new account details. Password is encrypted the same
// way as in LoginRequest.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	KeyID    string `json:"keyId" binding:"required"`
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// User is the public view of an account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	User User `json:"user"`
	TokenPair
}
