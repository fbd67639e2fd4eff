// Package auth extracts and checks the caller key of inbound integrations.
package auth

import (
	"net/http"
	"strings"

	"github.com/hookgate/hookgate/internal/core/signature"
)

// Header and query names a caller may use to present its integration key.
const (
	HeaderIntegrationKey = "x-integration-key"
	HeaderAPIKey         = "x-api-key"
)

var queryKeys = []string{"integrationKey", "integration_key", "key"}

// ExtractKey returns the caller-supplied key, or "" if none is present.
// Sources in priority order: Authorization Bearer, Authorization Token token=,
// x-integration-key, x-api-key, then the integrationKey, integration_key and
// key query parameters for senders that cannot set headers.
func ExtractKey(r *http.Request) string {
	if r == nil {
		return ""
	}

	if authz := strings.TrimSpace(r.Header.Get("Authorization")); authz != "" {
		if key, found := cutPrefixFold(authz, "Bearer "); found && key != "" {
			return key
		}
		if rest, found := cutPrefixFold(authz, "Token "); found {
			if key, found := strings.CutPrefix(strings.TrimSpace(rest), "token="); found && key != "" {
				return strings.Trim(key, `"`)
			}
		}
	}

	for _, header := range []string{HeaderIntegrationKey, HeaderAPIKey} {
		if key := strings.TrimSpace(r.Header.Get(header)); key != "" {
			return key
		}
	}

	query := r.URL.Query()
	for _, name := range queryKeys {
		if key := strings.TrimSpace(query.Get(name)); key != "" {
			return key
		}
	}

	return ""
}

// Authorize compares the provided key with the expected one in constant time.
// An empty expected key never authorizes.
func Authorize(provided, expected string) bool {
	match := signature.SecureCompare(provided, expected)
	return match && expected != ""
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(prefix):]), true
}
