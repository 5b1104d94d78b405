package sqlite

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// parseDSN accepts "sqlite://path", "sqlite://:memory:" or a bare path and
// returns the form the modernc driver opens. Query parameters pass through.
func parseDSN(dsn string) (string, error) {
	rest := strings.TrimSpace(dsn)
	if scheme, tail, ok := strings.Cut(rest, "://"); ok {
		if scheme != "sqlite" {
			return "", fmt.Errorf("invalid sqlite DSN scheme %q, expected sqlite://", scheme)
		}
		rest = tail
	}
	if rest == "" {
		return "", fmt.Errorf("empty sqlite DSN")
	}
	if rest == ":memory:" {
		return rest, nil
	}

	path, query, hasQuery := strings.Cut(rest, "?")
	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return "", fmt.Errorf("unescaping path: %w", err)
	}
	path = unescaped
	if !filepath.IsAbs(path) && !strings.HasPrefix(path, "./") {
		path = "./" + path
	}
	if hasQuery {
		return path + "?" + query, nil
	}
	return path, nil
}
