package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/gmailmcp/internal/logging"
)

// DefaultAuthorizeTimeout bounds how long the loopback listener waits for
// the browser redirect.
const DefaultAuthorizeTimeout = 5 * time.Minute

// LoopbackAuthorizer runs the installed-app OAuth flow: it listens on a
// loopback port, sends the user to Google's consent page and exchanges the
// code delivered to the redirect.
type LoopbackAuthorizer struct {
	secrets     *ClientSecrets
	scopes      []string
	listenAddr  string
	timeout     time.Duration
	openBrowser bool
	onURL       func(authURL string)
	logger      *slog.Logger
}

// LoopbackOption configures a LoopbackAuthorizer.
type LoopbackOption func(*LoopbackAuthorizer)

// WithURLHandler replaces the default handler, which prints the consent
// URL to stderr.
func WithURLHandler(fn func(authURL string)) LoopbackOption {
	return func(a *LoopbackAuthorizer) { a.onURL = fn }
}

// WithTimeout sets how long to wait for the redirect. Zero disables the
// timeout and relies on the caller's context alone.
func WithTimeout(d time.Duration) LoopbackOption {
	return func(a *LoopbackAuthorizer) { a.timeout = d }
}

// WithOpenBrowser tries to open the consent URL in the default browser.
func WithOpenBrowser(open bool) LoopbackOption {
	return func(a *LoopbackAuthorizer) { a.openBrowser = open }
}

// WithAuthorizerLogger sets the logger.
func WithAuthorizerLogger(logger *slog.Logger) LoopbackOption {
	return func(a *LoopbackAuthorizer) { a.logger = logger }
}

// NewLoopbackAuthorizer creates an Authorizer backed by secrets.
func NewLoopbackAuthorizer(secrets *ClientSecrets, opts ...LoopbackOption) *LoopbackAuthorizer {
	a := &LoopbackAuthorizer{
		secrets:    secrets,
		scopes:     RequiredScopes,
		listenAddr: "127.0.0.1:0",
		timeout:    DefaultAuthorizeTimeout,
		logger:     slog.Default(),
	}
	a.onURL = func(authURL string) { printAuthURL(os.Stderr, authURL) }
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type callbackResult struct {
	code string
	err  error
}

// Authorize implements Authorizer.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context) (*Credential, error) {
	if a.secrets == nil {
		return nil, ErrNoClientSecrets
	}
	config, err := a.secrets.Config(a.scopes)
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", a.listenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start loopback listener: %w", err)
	}
	config.RedirectURL = "http://" + ln.Addr().String() + "/"

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	authURL := config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Debug("loopback listener stopped", logging.Err(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if a.onURL != nil {
		a.onURL(authURL)
	}
	if a.openBrowser {
		if err := openBrowser(authURL); err != nil {
			a.logger.Info("could not open browser automatically", logging.Err(err))
		}
	}

	waitCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var res callbackResult
	select {
	case <-waitCtx.Done():
		return nil, fmt.Errorf("waiting for authorization redirect: %w", waitCtx.Err())
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := config.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return credentialFromToken(tok, config, a.scopes), nil
}

// callbackHandler accepts the first redirect to "/" and reports it on results.
func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()

		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = errors.New("authorization redirect has mismatched state")
		case q.Get("code") == "":
			res.err = errors.New("authorization redirect has no code")
		default:
			res.code = q.Get("code")
		}

		select {
		case results <- res:
		default:
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if res.err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = fmt.Fprintf(w, "Authorization failed: %v\n", res.err)
			return
		}
		_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
	})
}

func printAuthURL(w io.Writer, authURL string) {
	_, _ = fmt.Fprintf(w, "Open the following URL in your browser to authorize Gmail access:\n\n%s\n\n", authURL)
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}
