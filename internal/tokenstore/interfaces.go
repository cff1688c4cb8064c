package tokenstore

import "context"

// TokenStore reads and writes a single refresh token in persistent storage.
type TokenStore interface {
	// Read returns the stored refresh token. Returns error if the token is
	// missing or empty.
	Read(ctx context.Context) (string, error)

	// Write persists the refresh token, replacing any previous value.
	// Returns error if the backend is read-only (e.g. environment variables)
	// or if the write fails.
	Write(ctx context.Context, token string) error

	// Delete removes the stored refresh token. Deleting a token that does
	// not exist is not an error.
	Delete(ctx context.Context) error
}
