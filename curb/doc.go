// Package curb is a read-only client for the Curb energy-monitoring REST
// API: profiles, devices, and historical power-usage data.
//
// Authentication is delegated to an auth.TokenManager, which attaches a
// bearer token to every request and renews it transparently. A request
// rejected with an authorization failure invalidates the token and is
// retried exactly once; a second rejection surfaces as
// *auth.AuthenticationError.
//
//	manager, _ := auth.NewTokenManager(curb.TokenURL(curb.DefaultBaseURL), creds)
//	client := curb.New(manager)
//	defer client.Close()
//
//	profiles, err := client.Profiles(ctx)
//	devices, err := client.Devices(ctx)
package curb
