// Package tokenstore persists OAuth2 refresh tokens between runs.
//
// The Curb API rotates refresh tokens: a successful refresh may hand back a
// new refresh token that replaces the previous one. Losing the latest token
// forces a full password login, so storage must be durable and writable.
//
// Three backends with different security and deployment tradeoffs:
//   - File: local filesystem storage with atomic writes and 0600 permissions
//   - Env: read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
package tokenstore
