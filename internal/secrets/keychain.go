// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// DefaultKeychainService is the keychain service name entries are stored under.
const DefaultKeychainService = "areas"

const probeKey = "__areas_availability_probe__"

// KeychainBackend reads secrets from the system keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
type KeychainBackend struct {
	service string

	probe     sync.Once
	available bool
}

// NewKeychainBackend creates a keychain backend for the default service.
func NewKeychainBackend() *KeychainBackend {
	return &KeychainBackend{service: DefaultKeychainService}
}

// Name implements Backend.
func (k *KeychainBackend) Name() string { return "keychain" }

// Available probes the keyring once. A missing probe entry still counts as
// reachable.
func (k *KeychainBackend) Available() bool {
	k.probe.Do(func() {
		_, err := keyring.Get(k.service, probeKey)
		k.available = err == nil || errors.Is(err, keyring.ErrNotFound)
	})
	return k.available
}

// Get implements Backend.
func (k *KeychainBackend) Get(_ context.Context, key string) (string, error) {
	value, err := keyring.Get(k.service, key)
	switch {
	case err == nil:
		return value, nil
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	case keychainLocked(err):
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	default:
		return "", fmt.Errorf("keychain %s: %w", key, err)
	}
}

func keychainLocked(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"locked", "cannot access", "permission denied", "dbus"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
