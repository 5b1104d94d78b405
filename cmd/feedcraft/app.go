package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"feedcraft/internal/app"
	"feedcraft/internal/config"
)

func openApp(ctx context.Context, ensureSchema bool) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return app.Open(ctx, cfg, app.Options{EnsureSchema: ensureSchema})
}

// parseFieldPairs turns name=value arguments into activity fields. "at" must
// be an RFC 3339 timestamp.
func parseFieldPairs(pairs []string) (map[string]any, error) {
	fields := make(map[string]any)
	for _, pair := range pairs {
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid field %q: expected name=value", pair)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("invalid field %q: empty name", pair)
		}
		value := strings.TrimSpace(parts[1])
		if key == "at" {
			at, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return nil, fmt.Errorf("invalid at %q: %w", value, err)
			}
			fields[key] = at
			continue
		}
		fields[key] = value
	}
	return fields, nil
}

func parseTimeFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return t, nil
}
