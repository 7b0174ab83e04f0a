package secret

import (
	"os"
	"strings"
	"sync"
)

const EnvPrefix = "CANVASFLOW_SECRET_"

// EnvStore reads secrets from environment variables named after the key,
// e.g. db:4f1c... is CANVASFLOW_SECRET_DB_4F1C.... Values set at runtime
// live in memory for the life of the process.
type EnvStore struct {
	prefix string

	mu      sync.RWMutex
	values  map[string][]byte
	deleted map[string]bool
}

func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{prefix: prefix, values: map[string][]byte{}, deleted: map[string]bool{}}
}

// EnvName is the variable a key is read from.
func (s *EnvStore) EnvName(key string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return s.prefix + name
}

func (s *EnvStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	delete(s.deleted, key)
	return nil
}

func (s *EnvStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v, nil
	}
	if s.deleted[key] {
		return nil, nil
	}
	if v, ok := os.LookupEnv(s.EnvName(key)); ok {
		return []byte(v), nil
	}
	return nil, nil
}

// Delete hides the key, including any environment value, until it is set
// again.
func (s *EnvStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	s.deleted[key] = true
	return nil
}
