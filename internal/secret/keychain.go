package secret

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const keychainService = "canvasflow"

// KeychainStore keeps secrets in the macOS Keychain through the
// `security` tool.
type KeychainStore struct {
	service string
}

func NewKeychainStore(service string) *KeychainStore {
	return &KeychainStore{service: service}
}

func (k *KeychainStore) Set(key string, value []byte) error {
	out, err := exec.Command("security", "add-generic-password",
		"-a", key, "-s", k.service, "-w", string(value), "-U").CombinedOutput()
	if err != nil {
		return fmt.Errorf("keychain set: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (k *KeychainStore) Get(key string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password",
		"-a", key, "-s", k.service, "-w").Output()
	if err != nil {
		// Exit code 44: no such item.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
			return nil, nil
		}
		return nil, fmt.Errorf("keychain get: %w", err)
	}
	return []byte(strings.TrimSpace(string(out))), nil
}

func (k *KeychainStore) Delete(key string) error {
	err := exec.Command("security", "delete-generic-password", "-a", key, "-s", k.service).Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 44 {
		return nil
	}
	return err
}
