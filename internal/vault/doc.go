// Package vault persists tenants and their per-provider OAuth credentials.
//
// The Vault seals token material with AES-256-GCM before it reaches the
// underlying Store, so every Store implementation only ever sees ciphertext.
// All credential reads and writes are scoped by tenant id; there is no query
// path that crosses tenants.
package vault
