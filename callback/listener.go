// Package callback implements the one-shot loopback listener that captures the
// authorization code (or error) from the browser redirect of an OAuth2 flow.
package callback

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/go-mcp-auth/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPort         = 3030
	DefaultPath         = "/callback"
	DefaultPollInterval = 100 * time.Millisecond
	DefaultTimeout      = 300 * time.Second
)

var ErrAlreadyStarted = errors.New("callback listener already started")

//go:embed templates/result.html
var templateFiles embed.FS

var resultPage = template.Must(template.ParseFS(templateFiles, "templates/result.html"))

// Result is what the browser redirect delivered. Exactly one of Code or Error is set.
type Result struct {
	Code  string
	State string
	Error string
}

// AuthorizationError carries the error parameter the authorization server redirected with.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string {
	return "authorization failed: " + e.Message
}

func (e *AuthorizationError) Unwrap() error {
	return apperrors.ErrAuthorizationDenied
}

type Option func(*Listener)

func WithPollInterval(d time.Duration) Option {
	return func(l *Listener) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

func WithHost(host string) Option {
	return func(l *Listener) {
		l.host = host
	}
}

func WithPath(path string) Option {
	return func(l *Listener) {
		l.path = path
	}
}

// Listener owns one loopback socket for the duration of one authorization flow.
type Listener struct {
	host         string
	port         int
	path         string
	pollInterval time.Duration

	mu     sync.Mutex
	result *Result
	srv    *http.Server
	ln     net.Listener
	done   chan struct{}
}

// New creates a listener for the given port. Port 0 picks a free port on Start.
func New(port int, opts ...Option) *Listener {
	l := &Listener{
		host:         "localhost",
		port:         port,
		path:         DefaultPath,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start binds the socket and serves on a background goroutine. A bind failure, such as a
// second flow on the same port, is returned immediately.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.srv != nil {
		return ErrAlreadyStarted
	}

	addr := net.JoinHostPort(l.host, strconv.Itoa(l.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("[callback Start] listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+l.path, l.handleCallback)
	mux.HandleFunc("/", http.NotFound)

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	done := make(chan struct{})

	l.result = nil
	l.srv = srv
	l.ln = ln
	l.done = done

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Str("addr", addr).Msg("Callback server stopped unexpectedly")
		}
	}()

	log.Info().Str("redirect_uri", l.redirectURI()).Msg("Callback server running")
	return nil
}

// Stop shuts the server down and releases the socket. Calling Stop on a stopped
// listener is a no-op.
func (l *Listener) Stop(ctx context.Context) error {
	l.mu.Lock()
	srv, done := l.srv, l.done
	l.srv = nil
	l.mu.Unlock()

	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}

// WaitForResult polls the result cell until a callback has arrived, the timeout elapses or
// ctx ends. An error redirect is returned as *AuthorizationError.
func (l *Listener) WaitForResult(ctx context.Context, timeout time.Duration) (Result, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		if r, ok := l.Result(); ok {
			if r.Error != "" {
				return r, &AuthorizationError{Message: r.Error}
			}
			return r, nil
		}

		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("%w: %v", apperrors.ErrTimeout, ctx.Err())
		case <-deadline.C:
			return Result{}, fmt.Errorf("%w after %s", apperrors.ErrTimeout, timeout)
		case <-ticker.C:
		}
	}
}

// Result returns the captured callback, if any.
func (l *Listener) Result() (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.result == nil {
		return Result{}, false
	}
	return *l.result, true
}

// RedirectURI is the URI to register with the authorization server.
func (l *Listener) RedirectURI() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.redirectURI()
}

// Addr returns the bound address while running, otherwise the configured one.
func (l *Listener) Addr() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.addr()
}

func (l *Listener) addr() string {
	if l.srv != nil && l.ln != nil {
		if tcp, ok := l.ln.Addr().(*net.TCPAddr); ok {
			return net.JoinHostPort(l.host, strconv.Itoa(tcp.Port))
		}
	}
	return net.JoinHostPort(l.host, strconv.Itoa(l.port))
}

func (l *Listener) redirectURI() string {
	return "http://" + l.addr() + l.path
}

func (l *Listener) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var incoming Result
	// Empty values carry no outcome and are treated like any other stray request.
	switch {
	case q.Get("code") != "":
		incoming = Result{Code: q.Get("code"), State: q.Get("state")}
	case q.Get("error") != "":
		incoming = Result{Error: q.Get("error")}
	default:
		http.NotFound(w, r)
		return
	}

	l.mu.Lock()
	if l.result == nil {
		l.result = &incoming
	} else {
		log.Warn().Msg("Ignoring repeated authorization callback")
	}
	outcome := *l.result
	l.mu.Unlock()

	writeResultPage(w, outcome)
}

func writeResultPage(w http.ResponseWriter, r Result) {
	title := "Authorization Successful"
	status := http.StatusOK
	if r.Error != "" {
		title = "Authorization Failed: " + r.Error
		status = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := resultPage.Execute(w, struct{ Title string }{title}); err != nil {
		log.Err(err).Msg("Error writing callback page")
	}
}
