package auth

import "fmt"

// AuthenticationError reports rejected credentials: a failed password login,
// or repeated authorization failures on an API request after the single
// token-invalidation retry.
type AuthenticationError struct {
	// StatusCode is the HTTP status returned by the endpoint, or zero when
	// the failure did not come from an HTTP response.
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// TokenRefreshError reports a refresh token rejected by the token endpoint.
// The manager has dropped back to the unauthenticated state; recovery
// requires a full password login.
type TokenRefreshError struct {
	StatusCode int
	Err        error
}

func (e *TokenRefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh rejected (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("token refresh rejected: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// TransportError reports a network or connection failure. The underlying
// error from the HTTP client is propagated unchanged via Unwrap.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that is not the expected JSON shape.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decoding response: %v", e.Err) }

func (e *DecodeError) Unwrap() error { return e.Err }
