package oauth2

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"nativeauth/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
)

const shutdownGrace = 2 * time.Second

const pageTemplate = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>%[1]s</title></head>
<body><h2>%[1]s</h2><p>%[2]s</p></body></html>`

type redirectResult struct {
	code string
	err  error
}

// RedirectListener is a short-lived HTTP endpoint on the loopback interface that captures
// the authorization response of one login attempt.
type RedirectListener struct {
	redirect      *url.URL
	expectedState string
	logger        logger.Client

	ln     net.Listener
	srv    *http.Server
	served chan struct{}

	result    chan redirectResult
	resolve   sync.Once
	closeOnce sync.Once
	closeErr  error
}

type ListenerOption func(*RedirectListener)

// WithExpectedState answers 400 to redirects whose state parameter differs from s
// and keeps waiting for one that matches.
func WithExpectedState(s string) ListenerOption {
	return func(l *RedirectListener) {
		l.expectedState = s
	}
}

func WithListenerLogger(log logger.Client) ListenerOption {
	return func(l *RedirectListener) {
		l.logger = log
	}
}

// ListenRedirect binds the host:port of redirectURI and starts serving in the background.
// The caller must call Wait or Close to release the port.
func ListenRedirect(ctx context.Context, redirectURI string, opts ...ListenerOption) (*RedirectListener, error) {
	u, err := parseLoopbackURI(redirectURI)
	if err != nil {
		return nil, err
	}

	l := &RedirectListener{
		redirect: u,
		logger:   logger.NewNop(),
		served:   make(chan struct{}),
		result:   make(chan redirectResult, 1),
	}
	for _, opt := range opts {
		opt(l)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort(u.Hostname(), port))
	if err != nil {
		if ctx.Err() != nil {
			return nil, cancelled(ctx.Err())
		}
		return nil, fmt.Errorf("failed to bind redirect listener: %w", err)
	}
	l.ln = ln

	l.srv = &http.Server{
		Handler:           l.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		defer close(l.served)
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Error("redirect listener stopped", logger.Err(err))
		}
	}()

	l.logger.Debug("redirect listener started",
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "path", Value: l.callbackPath()},
	)
	return l, nil
}

// Addr returns the bound address
func (l *RedirectListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Wait blocks until the redirect arrives or ctx is done. The listener is closed on return.
func (l *RedirectListener) Wait(ctx context.Context) (string, error) {
	defer l.Close()

	select {
	case res := <-l.result:
		return res.code, res.err
	case <-ctx.Done():
		l.logger.Debug("redirect wait cancelled", logger.Err(ctx.Err()))
		return "", cancelled(ctx.Err())
	}
}

// Close stops the server and releases the port. Safe to call more than once.
func (l *RedirectListener) Close() error {
	l.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		// Shutdown closes the listening socket before draining connections.
		if err := l.srv.Shutdown(ctx); err != nil {
			l.closeErr = l.srv.Close()
		}
		<-l.served
		l.resolveOnce(redirectResult{err: cancelled(context.Canceled)})
	})
	return l.closeErr
}

func (l *RedirectListener) callbackPath() string {
	if l.redirect.Path == "" {
		return "/"
	}
	return l.redirect.Path
}

func (l *RedirectListener) router() http.Handler {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("nativeauth-redirect"))
	r.Use(l.traceLogger())

	r.GET(l.callbackPath(), l.handleRedirect)
	r.POST(l.callbackPath(), l.handleRedirect)
	r.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "Not Found")
	})
	return r
}

// traceLogger logs each request to the listener with the span ids otelgin started.
func (l *RedirectListener) traceLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		fields := []logger.Field{
			{Key: "method", Value: c.Request.Method},
			{Key: "path", Value: c.Request.URL.Path},
			{Key: "status", Value: c.Writer.Status()},
		}
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			fields = append(fields,
				logger.Field{Key: "trace_id", Value: sc.TraceID().String()},
				logger.Field{Key: "span_id", Value: sc.SpanID().String()},
			)
		}
		l.logger.Debug("redirect request", fields...)
	}
}

func (l *RedirectListener) handleRedirect(c *gin.Context) {
	// Form merges the query string with a form_post body.
	if err := c.Request.ParseForm(); err != nil {
		l.writePage(c, http.StatusBadRequest, "Authorization failed", "The redirect could not be read.")
		return
	}
	params := c.Request.Form

	if l.expectedState != "" && params.Get("state") != l.expectedState {
		// a stale tab from an earlier attempt must not end this one
		l.logger.Warn("ignoring redirect", logger.Err(ErrStateMismatch))
		l.writePage(c, http.StatusBadRequest, "Authorization failed", "The sign-in response did not match this request.")
		return
	}

	code := params.Get("code")
	if code == "" {
		authErr := &AuthorizationError{
			Code:        params.Get("error"),
			Description: params.Get("error_description"),
			URI:         params.Get("error_uri"),
		}
		l.logger.Warn("redirect without authorization code", logger.Field{Key: "error", Value: authErr.Code})
		l.writePage(c, http.StatusOK, "Authorization failed", "No authorization code was received. You can close this window.")
		l.resolveOnce(redirectResult{err: authErr})
		return
	}

	l.writePage(c, http.StatusOK, "Authorization complete", "You can close this window and return to the application.")
	l.resolveOnce(redirectResult{code: code})
}

func (l *RedirectListener) writePage(c *gin.Context, status int, title, message string) {
	body := fmt.Sprintf(pageTemplate, html.EscapeString(title), html.EscapeString(message))
	c.Data(status, "text/html; charset=utf-8", []byte(body))
}

func (l *RedirectListener) resolveOnce(res redirectResult) {
	l.resolve.Do(func() {
		l.result <- res
	})
}
