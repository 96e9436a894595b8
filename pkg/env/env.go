// Package env reads the handful of variables needed before config.Load runs.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces every escrow variable.
const Prefix = "ESCROW_"

// Get returns ESCROW_<key>, then the bare key, then fallback. Platform
// variables such as PORT are injected without the prefix.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}

// Bool reports whether key is set to a truthy value.
func Bool(key string) bool {
	switch strings.ToLower(Get(key, "")) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
