// Package v1 provides session authentication business logic for API version 1.
//
// Error Handling:
// Sentinel errors below represent the expected failures of the auth flows.
// They are wrapped with context using fmt.Errorf("%w") when returned and
// matched with errors.Is in handlers.
//
// The SessionManager itself never returns an error for an invalid, expired or
// revoked token; it returns a nil result instead. Errors from it mean the
// key-value store could not be consulted, and callers must fail closed.
//
// Error Checking (in handlers):
//
//	switch {
//	case errors.Is(err, logicv1.ErrInvalidCredentials), errors.Is(err, logicv1.ErrUserNotFound):
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
//	case errors.Is(err, logicv1.ErrEncryptionKeyExpired):
//	    c.JSON(http.StatusBadRequest, gin.H{"error": "Encryption key expired"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
//	}
package v1

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrInvalidCredentials indicates the provided credentials are incorrect.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserNotFound indicates the user does not exist in the system.
	// HTTP Status: 401 Unauthorized (don't reveal user existence)
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists indicates the username or email already exists in the system.
	// HTTP Status: 409 Conflict
	ErrUserExists = errors.New("user already exists")

	// ErrEncryptionKeyExpired indicates the ephemeral key is unknown or has
	// expired; the client must restart the key exchange.
	// HTTP Status: 400 Bad Request
	ErrEncryptionKeyExpired = errors.New("encryption key expired or unknown")

	// ErrCredentialProcessing indicates the transported password could not be
	// decrypted. Never carries key or plaintext material.
	// HTTP Status: 400 Bad Request
	ErrCredentialProcessing = errors.New("credential processing failed")

	// ErrWeakPassword indicates the decrypted password does not meet policy.
	// HTTP Status: 400 Bad Request
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrInvalidSession indicates a token that is not a live session.
	// HTTP Status: 401 Unauthorized
	ErrInvalidSession = errors.New("invalid or expired session")
)
