package oauth2

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"nativeauth/pkg/idgen"
	"nativeauth/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
)

const (
	tracerName  = "nativeauth/pkg/oauth2"
	stateLength = 32
)

// Engine runs the authorization code flow for one provider descriptor and owns the
// resulting session. One login may be in flight per engine.
type Engine struct {
	desc        Descriptor
	httpClient  *http.Client
	logger      logger.Client
	openBrowser BrowserOpener
	ids         idgen.Generator
	tracer      trace.Tracer
	meter       metric.Meter
	logins      metric.Int64Counter
	now         func() time.Time
	verifier    *JWTVerifier

	session Session
}

type EngineOption func(*Engine)

// WithHTTPClient sets the client used for token and userinfo calls
func WithHTTPClient(c *http.Client) EngineOption {
	return func(e *Engine) {
		e.httpClient = c
	}
}

func WithLogger(l logger.Client) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithBrowserOpener replaces OpenBrowser, e.g. to print the URL instead
func WithBrowserOpener(open BrowserOpener) EngineOption {
	return func(e *Engine) {
		e.openBrowser = open
	}
}

func WithIDGenerator(g idgen.Generator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithMeter(m metric.Meter) EngineOption {
	return func(e *Engine) {
		e.meter = m
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine validates the descriptor and prepares an unauthenticated session.
func NewEngine(desc Descriptor, opts ...EngineOption) (*Engine, error) {
	if err := desc.Options.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		desc:        desc,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		logger:      logger.NewNop(),
		openBrowser: OpenBrowser,
		tracer:      otel.Tracer(tracerName),
		meter:       otel.Meter(tracerName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	logins, err := e.meter.Int64Counter("nativeauth.logins",
		metric.WithDescription("Completed login attempts by provider and outcome"),
	)
	if err != nil {
		return nil, err
	}
	e.logins = logins

	if e.ids == nil {
		gen, err := idgen.NewSnowflakeGenerator(1)
		if err != nil {
			return nil, err
		}
		e.ids = gen
	}

	if desc.PublicKeyPEM != "" {
		v, err := NewJWTVerifier(desc.PublicKeyPEM, desc.ValidateExpiration, WithVerifierClock(e.now))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		e.verifier = v
	}
	return e, nil
}

// AuthorizationURL builds the URL the user's browser is sent to.
// verifier is the PKCE code verifier, or "" when PKCE is not used.
func (e *Engine) AuthorizationURL(state, verifier string) string {
	cfg := oauth2.Config{
		ClientID:     e.desc.Options.ClientID,
		ClientSecret: e.desc.Options.ClientSecret,
		RedirectURL:  e.desc.Options.RedirectURI,
		Scopes:       e.desc.Options.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  e.desc.Options.AuthorizationEndpoint,
			TokenURL: e.desc.Options.TokenEndpoint,
		},
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(e.desc.AuthParams)+2)
	if len(e.desc.Options.Scopes) > 0 && e.desc.ScopeSeparator != "" && e.desc.ScopeSeparator != " " {
		opts = append(opts, oauth2.SetAuthURLParam("scope", e.desc.scopeString()))
	}
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	for k, v := range e.desc.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return cfg.AuthCodeURL(state, opts...)
}

// Login runs the full flow: authorization URL, loopback redirect, code exchange, user
// resolution. On failure the session is left in StateFailed without token or user.
func (e *Engine) Login(ctx context.Context) (*AuthUser, error) {
	if err := e.session.begin(); err != nil {
		return nil, err
	}

	attempt := logger.Field{Key: "attempt_id", Value: e.ids.NewID()}
	provider := logger.Field{Key: "provider", Value: e.desc.Name}

	ctx, span := e.tracer.Start(ctx, "oauth2.Login", trace.WithAttributes(
		attribute.String("oauth2.provider", e.desc.Name),
	))
	defer span.End()

	started := e.now()
	e.logger.Info("login started", attempt, provider)

	token, user, err := e.login(ctx, attempt)
	if err != nil {
		e.session.fail(err)
		e.countLogin(ctx, "failure")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Warn("login failed", attempt, provider, logger.Err(err))
		return nil, err
	}

	e.session.complete(token, user)
	e.countLogin(ctx, "success")
	e.logger.Info("login succeeded", attempt, provider,
		logger.Field{Key: "user_id", Value: user.ID},
		logger.Field{Key: "elapsed", Value: e.now().Sub(started)},
	)
	return user, nil
}

func (e *Engine) countLogin(ctx context.Context, outcome string) {
	e.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", e.desc.Name),
		attribute.String("outcome", outcome),
	))
}

func (e *Engine) login(ctx context.Context, attempt logger.Field) (*Token, *AuthUser, error) {
	state, err := GenerateRandomString(stateLength)
	if err != nil {
		return nil, nil, err
	}

	var verifier string
	if e.desc.usePKCE() {
		if verifier, err = GenerateCodeVerifier(DefaultVerifierLength); err != nil {
			return nil, nil, err
		}
	}

	ln, err := ListenRedirect(ctx, e.desc.Options.RedirectURI,
		WithExpectedState(state),
		WithListenerLogger(e.logger),
	)
	if err != nil {
		return nil, nil, err
	}
	defer ln.Close()

	authURL := e.AuthorizationURL(state, verifier)
	if err := e.openBrowser(authURL); err != nil {
		e.logger.Warn("could not open browser, open the URL manually", attempt,
			logger.Field{Key: "url", Value: authURL}, logger.Err(err))
	}

	e.logger.Debug("waiting for redirect", attempt, logger.Field{Key: "addr", Value: ln.Addr().String()})
	code, err := ln.Wait(ctx)
	if err != nil {
		return nil, nil, err
	}

	e.session.advance(StateExchangingCode)
	e.logger.Debug("exchanging authorization code", attempt)
	token, err := e.exchange(ctx, code, verifier)
	if err != nil {
		return nil, nil, err
	}

	e.session.advance(StateResolvingUser)
	e.logger.Debug("resolving user", attempt)
	claims, err := e.resolveClaims(ctx, token, attempt)
	if err != nil {
		return nil, nil, err
	}

	user, err := Normalize(claims, e.desc.claims())
	if err != nil {
		return nil, nil, err
	}
	return token, user, nil
}

func (e *Engine) exchange(ctx context.Context, code, verifier string) (*Token, error) {
	ctx, span := e.tracer.Start(ctx, "oauth2.Exchange")
	defer span.End()

	x := &Exchanger{
		HTTPClient: e.httpClient,
		AuthStyle:  e.desc.AuthStyle,
		Now:        e.now,
	}
	token, err := x.Exchange(ctx, code, e.desc.Options, verifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return token, nil
}

// resolveClaims reads the userinfo endpoint, or the ID token when the provider has none.
func (e *Engine) resolveClaims(ctx context.Context, token *Token, attempt logger.Field) (map[string]string, error) {
	endpoint := e.desc.Options.UserInfoEndpoint
	if endpoint == "" {
		if token.IDToken == "" {
			return nil, ErrMissingIDToken
		}
		if e.verifier != nil {
			return e.verifier.Verify(token.IDToken)
		}
		return DecodeJWTPayload(token.IDToken)
	}

	ctx, span := e.tracer.Start(ctx, "oauth2.UserInfo")
	defer span.End()

	ui := &userInfoClient{httpClient: e.httpClient}
	claims, err := ui.fetchClaims(ctx, endpoint, token, e.desc.UserInfoEnvelope)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	mapping := e.desc.claims()
	if e.desc.EmailsEndpoint != "" && firstClaim(claims, mapping.Email) == "" {
		// a missing address is not fatal; the user may simply have none
		email, verified, err := ui.primaryEmail(ctx, e.desc.EmailsEndpoint, token)
		if err != nil {
			e.logger.Warn("failed to fetch primary email", attempt, logger.Err(err))
		} else if email != "" {
			key := "email"
			if len(mapping.Email) > 0 {
				key = mapping.Email[0]
			}
			claims[key] = email
			claims["email_verified"] = fmt.Sprint(verified)
		}
	}
	return claims, nil
}

// Logout forgets the token and user. It fails only while a login is in flight.
func (e *Engine) Logout(ctx context.Context) error {
	if err := e.session.clear(); err != nil {
		return err
	}
	e.logger.Info("logged out", logger.Field{Key: "provider", Value: e.desc.Name})
	return nil
}

func (e *Engine) IsAuthenticated() bool {
	return e.session.State() == StateAuthenticated
}

func (e *Engine) CurrentUser() *AuthUser {
	return e.session.User()
}

func (e *Engine) Token() *Token {
	return e.session.Token()
}

func (e *Engine) State() State {
	return e.session.State()
}

// Err returns the failure of the last login, if it failed.
func (e *Engine) Err() error {
	return e.session.Err()
}

func (e *Engine) Descriptor() Descriptor {
	return e.desc
}
