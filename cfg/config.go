package cfg

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultLoginTimeout = 5 * time.Minute

type OAuth2Config struct {
	Provider      string
	ClientID      string
	ClientSecret  string
	RedirectURI   string
	Scopes        []string
	Issuer        string
	KeycloakURL   string
	KeycloakRealm string
	Token         string
	PublicKeyFile string
	LoginTimeout  time.Duration
}

type ObservabilityConfig struct {
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

type Config struct {
	AppEnv        string
	OAuth2        OAuth2Config
	Observability ObservabilityConfig
}

// Load reads the given env files (".env" when none are named) and then the process
// environment. A missing env file is not an error; missing variables are, all reported together.
func Load(files ...string) (*Config, error) {
	var errs []error

	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.New("failed load cfg: " + err.Error())
	}

	appEnv := mustEnv("APP_ENV", &errs)

	provider := strings.ToLower(mustEnv("OAUTH2_PROVIDER", &errs))
	publicKeyFile := os.Getenv("OAUTH2_PUBLIC_KEY_FILE")

	// a pre-issued token needs no client registration
	var clientID, redirectURI string
	if provider != "token" {
		clientID = mustEnv("OAUTH2_CLIENT_ID", &errs)
		redirectURI = mustEnv("OAUTH2_REDIRECT_URI", &errs)
	}

	var issuer, keycloakURL, keycloakRealm, token string
	switch provider {
	case "oidc":
		issuer = mustEnv("OAUTH2_ISSUER", &errs)
	case "keycloak":
		keycloakURL = mustEnv("OAUTH2_KEYCLOAK_URL", &errs)
		keycloakRealm = mustEnv("OAUTH2_KEYCLOAK_REALM", &errs)
	case "token":
		token = mustEnv("OAUTH2_TOKEN", &errs)
		publicKeyFile = mustEnv("OAUTH2_PUBLIC_KEY_FILE", &errs)
	}

	loginTimeout := defaultLoginTimeout
	if raw := os.Getenv("OAUTH2_LOGIN_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errs = append(errs, errors.New("conversion failed env: "+"OAUTH2_LOGIN_TIMEOUT"))
		}
		loginTimeout = d
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	serviceName := os.Getenv("OTEL_SERVICE_NAME")
	if serviceName == "" {
		serviceName = "nativeauth"
	}

	return &Config{
		AppEnv: appEnv,
		OAuth2: OAuth2Config{
			Provider:      provider,
			ClientID:      clientID,
			ClientSecret:  os.Getenv("OAUTH2_CLIENT_SECRET"),
			RedirectURI:   redirectURI,
			Scopes:        splitList(os.Getenv("OAUTH2_SCOPES")),
			Issuer:        issuer,
			KeycloakURL:   keycloakURL,
			KeycloakRealm: keycloakRealm,
			Token:         token,
			PublicKeyFile: publicKeyFile,
			LoginTimeout:  loginTimeout,
		},
		Observability: ObservabilityConfig{
			ServiceName:  serviceName,
			Environment:  appEnv,
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		},
	}, nil
}

func mustEnv(key string, errs *[]error) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errs = append(*errs, errors.New("missing env: "+key))
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
