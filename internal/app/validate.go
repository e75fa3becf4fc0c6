package app

import (
	"fmt"
	"net"
	"strings"

	"meshnode/pkg/config"
)

// validateConfig rejects startup configurations that would fail at
// runtime in confusing ways.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("storage.db_path must not be empty")
	}
	if eff.Addr != "" {
		if _, _, err := net.SplitHostPort(eff.Addr); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", eff.Addr, err)
		}
	}
	gw := eff.Config.Resolver.GatewayURL
	if gw != "" && !strings.HasPrefix(gw, "http://") && !strings.HasPrefix(gw, "https://") {
		return fmt.Errorf("resolver.gateway_url must be an http(s) URL, got %q", gw)
	}
	if r := eff.Config.Ingest.Retry.MaxAttempts; r < 0 {
		return fmt.Errorf("ingest.retry.max_attempts must be >= 0, got %d", r)
	}
	if w := eff.Config.Ingest.Workers; w < 0 {
		return fmt.Errorf("ingest.workers must be >= 0, got %d", w)
	}
	return nil
}
