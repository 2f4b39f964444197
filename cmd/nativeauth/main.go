package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nativeauth/cfg"
	"nativeauth/pkg/logger"
	"nativeauth/pkg/oauth2"
	"nativeauth/pkg/telemetry"

	"github.com/gin-gonic/gin"
)

func main() {
	// ============
	// config
	// ============
	config, errCfg := cfg.Load()
	if errCfg != nil {
		log.Fatal(errCfg)
	}

	// ============
	// logger
	// ============
	zlogger := logger.NewZeroLog(config.AppEnv)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============
	// Otel
	// ============
	shutdownOtel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  config.Observability.ServiceName,
		Environment:  config.Observability.Environment,
		OTLPEndpoint: config.Observability.OTLPEndpoint,
	})
	if err != nil {
		zlogger.Warn("continuing without tracing/metrics", logger.Err(err))
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOtel(ctx); err != nil {
				zlogger.Warn("failed to shutdown OpenTelemetry", logger.Err(err))
			}
		}()
	}

	// ============
	// Provider
	// ============
	provider, err := buildProvider(ctx, config.OAuth2, zlogger)
	if err != nil {
		zlogger.Error("failed to build provider", logger.Err(err))
		os.Exit(1)
	}

	// ============
	// Login
	// ============
	loginCtx, cancel := context.WithTimeout(ctx, config.OAuth2.LoginTimeout)
	defer cancel()

	user, err := provider.Login(loginCtx)
	if err != nil {
		zlogger.Error("login failed", logger.Err(err))
		os.Exit(1)
	}

	out := struct {
		User      *oauth2.AuthUser `json:"user"`
		ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	}{
		User: user,
	}
	if tok := provider.Token(); tok != nil && tok.HasExpiry() {
		at := tok.ExpiresAt()
		out.ExpiresAt = &at
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		zlogger.Error("failed to print user", logger.Err(err))
	}
}

func buildProvider(ctx context.Context, c cfg.OAuth2Config, zlogger logger.Client) (oauth2.Provider, error) {
	if c.Provider == "token" {
		pem, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		tp, err := oauth2.NewTokenProvider(c.Token, string(pem), true, oauth2.ClaimMapping{})
		if err != nil {
			return nil, err
		}
		return tp, nil
	}

	desc, err := buildDescriptor(ctx, c)
	if err != nil {
		return nil, err
	}
	engine, err := oauth2.NewEngine(desc,
		oauth2.WithLogger(zlogger),
		oauth2.WithBrowserOpener(func(url string) error {
			fmt.Fprintf(os.Stderr, "Opening browser for sign-in. If it does not open, visit:\n\n  %s\n\n", url)
			return oauth2.OpenBrowser(url)
		}),
	)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func buildDescriptor(ctx context.Context, c cfg.OAuth2Config) (oauth2.Descriptor, error) {
	creds := oauth2.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURI:  c.RedirectURI,
		Scopes:       c.Scopes,
	}

	var (
		desc oauth2.Descriptor
		err  error
	)
	switch c.Provider {
	case "oidc":
		desc, err = oauth2.DiscoverProvider(ctx, c.Issuer, creds, nil)
	case "keycloak":
		desc = oauth2.KeycloakProvider(c.KeycloakURL, c.KeycloakRealm, creds)
	default:
		desc, err = oauth2.NewDescriptor(c.Provider, creds)
	}
	if err != nil {
		return oauth2.Descriptor{}, err
	}

	if c.PublicKeyFile != "" {
		pem, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return oauth2.Descriptor{}, fmt.Errorf("failed to read public key: %w", err)
		}
		desc.PublicKeyPEM = string(pem)
		desc.ValidateExpiration = true
	}
	return desc, nil
}
