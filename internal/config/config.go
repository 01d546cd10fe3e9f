// Package config resolves client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Environment variables understood by the client. A .env file in the working
// directory is honored when present (loaded by the CLI entrypoint).
const (
	EnvGatewayURL = "ATENEX_API_GATEWAY_URL"
	EnvAppEnv     = "APP_ENV"
	EnvAdminEmail = "ATENEX_ADMIN_EMAIL"
)

const (
	defaultDevGatewayURL = "http://localhost:8080"
	defaultAdminEmail    = "admin@atenex.com"
)

// Config is everything the client needs at startup.
type Config struct {
	// GatewayURL is the API gateway base URL without a trailing slash.
	GatewayURL string
	// Env is the deployment environment ("development" when unset).
	Env string
	// AdminEmail identifies the platform administrator account; the derived
	// session for this email gets the admin flag.
	AdminEmail string
}

// Load resolves configuration from the environment. A missing gateway URL is
// fatal in production; in any other environment the development default is
// used and a warning is logged.
func Load(log *zap.Logger) (Config, error) {
	env := os.Getenv(EnvAppEnv)
	if env == "" {
		env = "development"
	}

	gatewayURL := os.Getenv(EnvGatewayURL)
	if gatewayURL == "" {
		if env == "production" {
			return Config{}, fmt.Errorf("%s must be set in production", EnvGatewayURL)
		}
		log.Warn("gateway URL not configured, using development default",
			zap.String("default", defaultDevGatewayURL),
		)
		gatewayURL = defaultDevGatewayURL
	}

	if !strings.HasPrefix(gatewayURL, "http://") && !strings.HasPrefix(gatewayURL, "https://") {
		return Config{}, fmt.Errorf("invalid gateway URL %q: must start with http:// or https://", gatewayURL)
	}
	gatewayURL = strings.TrimSuffix(gatewayURL, "/")

	adminEmail := os.Getenv(EnvAdminEmail)
	if adminEmail == "" {
		adminEmail = defaultAdminEmail
	}

	return Config{GatewayURL: gatewayURL, Env: env, AdminEmail: adminEmail}, nil
}
