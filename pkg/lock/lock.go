// Package lock provides lease-based lock stores used to arbitrate clustered tasks.
package lock

import (
	"errors"
	"strings"
)

// ErrUnsupportedStore is returned for lock URLs with an unknown scheme.
var ErrUnsupportedStore = errors.New("unsupported lock store")

// KeyPrefix namespaces lock keys in shared stores.
const KeyPrefix = "integra:lock:"

func key(name string) string {
	if strings.HasPrefix(name, KeyPrefix) {
		return name
	}

	return KeyPrefix + name
}
