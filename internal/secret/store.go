// Package secret keeps database passwords out of the canvas database.
package secret

import "fmt"

// SecretStore stores sensitive values such as database passwords.
type SecretStore interface {
	Set(key string, value []byte) error

	// Get returns an empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)

	Delete(key string) error
}

// New returns the store for a configured backend: "env" (the default) or
// "keychain".
func New(backend string) (SecretStore, error) {
	switch backend {
	case "", "env":
		return NewEnvStore(EnvPrefix), nil
	case "keychain":
		return NewKeychainStore(keychainService), nil
	default:
		return nil, fmt.Errorf("unknown secret backend %q", backend)
	}
}
