package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/lhalley/roomcast/internal/v1/logging"
)

// defaultOrigins is used when ALLOWED_ORIGINS is not configured, so a
// bare checkout works against a local frontend out of the box.
var defaultOrigins = []string{"http://localhost:3000", "http://localhost:8080"}

// AllowedOrigins parses a comma-separated origin list into the set of
// scheme://host values consulted on every upgrade request. Malformed
// entries are skipped with a warning; an empty result falls back to
// the local development origins.
func AllowedOrigins(raw string) set.Set[string] {
	allowed := set.New[string]()

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		origin, err := normalizeOrigin(entry)
		if err != nil {
			logging.Warn(context.Background(), "Skipping malformed allowed origin",
				zap.String("origin", entry), zap.Error(err))
			continue
		}
		allowed.Insert(origin)
	}

	if allowed.Len() == 0 {
		logging.Warn(context.Background(), "ALLOWED_ORIGINS not set, using default development origins",
			zap.Strings("origins", defaultOrigins))
		for _, entry := range defaultOrigins {
			origin, _ := normalizeOrigin(entry)
			allowed.Insert(origin)
		}
	}

	return allowed
}

// normalizeOrigin reduces an origin to its comparable scheme://host
// form. Hosts are case-insensitive; paths, trailing slashes, and
// userinfo are not part of a browser origin.
func normalizeOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin must be scheme://host, got %q", raw)
	}
	return u.Scheme + "://" + strings.ToLower(u.Host), nil
}

// validateOrigin checks the request origin against the allowed set.
// Requests without an Origin header are allowed so non-browser clients
// can connect; browsers always send the header on upgrade requests, so
// a cross-site page cannot slip through by omitting it.
func validateOrigin(r *http.Request, allowed set.Set[string]) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.GetLogger().Debug("No origin header - allowing non-browser client")
		return nil
	}

	normalized, err := normalizeOrigin(origin)
	if err != nil {
		logging.Warn(r.Context(), "Invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	if !allowed.Has(normalized) {
		logging.Warn(r.Context(), "Origin not in allowed list",
			zap.String("origin", origin),
			zap.Strings("allowedOrigins", allowed.SortedList()))
		return fmt.Errorf("origin not allowed: %s", origin)
	}

	logging.GetLogger().Debug("Origin validated", zap.String("origin", origin))
	return nil
}
