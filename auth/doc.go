// Package auth manages the OAuth2 token lifecycle for the Curb API.
//
// The Curb API issues short-lived access tokens via the password grant and
// renews them via the refresh grant. TokenManager owns that lifecycle: it
// tracks the current token state (unauthenticated, authenticated, expired),
// performs login and refresh lazily on demand, and serializes concurrent
// token acquisition so at most one token-endpoint request is in flight at a
// time.
//
// # Usage
//
//	manager, err := auth.NewTokenManager(tokenURL, auth.Credentials{
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		Username:     username,
//		Password:     password,
//	})
//	// ...
//	token, err := manager.Token(ctx) // logs in or refreshes as needed
//
// A manager can also be seeded with an existing token pair instead of
// password credentials:
//
//	manager, err := auth.NewTokenManager(tokenURL, auth.Credentials{
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		RefreshToken: refreshToken,
//	})
//
// # Failure modes
//
// Rejected password credentials surface as *AuthenticationError. A rejected
// refresh token surfaces as *TokenRefreshError and drops the manager back to
// the unauthenticated state; recovering from that requires a fresh password
// login. Network failures surface as *TransportError and leave the token
// state untouched.
package auth
