package google

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/gmailmcp/internal/instrumentation"
	"github.com/teemow/gmailmcp/internal/logging"
)

// RefreshTimeout bounds a single token refresh.
const RefreshTimeout = 30 * time.Second

// State is a node of the authentication state machine.
type State int

const (
	StateNoCredential State = iota
	StateInvalid
	StateRefreshing
	StateInteractiveAuthRequired
	StateAuthenticated
	StateRefreshFailed
	// StateFailed is terminal for a single run: interactive authorization
	// did not produce a credential.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoCredential:
		return "no_credential"
	case StateInvalid:
		return "invalid"
	case StateRefreshing:
		return "refreshing"
	case StateInteractiveAuthRequired:
		return "interactive_auth_required"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshFailed:
		return "refresh_failed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Refresher exchanges a credential's refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, c *Credential) (*Credential, error)
}

// Authorizer obtains a brand new credential from the user.
type Authorizer interface {
	Authorize(ctx context.Context) (*Credential, error)
}

// Flow produces a valid credential, refreshing or re-authorizing as needed.
// It is safe for concurrent use; concurrent callers share one run.
type Flow struct {
	store      CredentialStore
	refresher  Refresher
	authorizer Authorizer

	scopes       []string
	logger       *slog.Logger
	metrics      *instrumentation.Metrics
	now          func() time.Time
	onTransition func(from, to State)

	group singleflight.Group

	mu    sync.Mutex
	state State
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// WithLogger sets the logger used for transition and persistence logs.
func WithLogger(logger *slog.Logger) FlowOption {
	return func(f *Flow) { f.logger = logger }
}

// WithMetrics records transitions and OAuth outcomes.
func WithMetrics(m *instrumentation.Metrics) FlowOption {
	return func(f *Flow) { f.metrics = m }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) FlowOption {
	return func(f *Flow) { f.now = now }
}

// WithTransitionHook registers fn to be called on every state change.
func WithTransitionHook(fn func(from, to State)) FlowOption {
	return func(f *Flow) { f.onTransition = fn }
}

// WithScopes overrides RequiredScopes.
func WithScopes(scopes ...string) FlowOption {
	return func(f *Flow) { f.scopes = scopes }
}

// NewFlow creates a Flow. authorizer may be nil, in which case a credential
// that cannot be refreshed fails authentication.
func NewFlow(store CredentialStore, refresher Refresher, authorizer Authorizer, opts ...FlowOption) *Flow {
	f := &Flow{
		store:      store,
		refresher:  refresher,
		authorizer: authorizer,
		scopes:     RequiredScopes,
		logger:     slog.Default(),
		now:        time.Now,
		state:      StateNoCredential,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	f.logger = logging.WithComponent(f.logger, "auth")
	return f
}

// State returns the state the last run ended in.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Credential returns a credential valid for the required scopes. Callers
// that arrive while a run is in progress wait for and share its result.
//
// The shared run is detached from the caller's cancellation and bounded by
// the authorizer's own timeout. A caller whose ctx ends gets ctx.Err() at
// once; the run continues for the others.
func (f *Flow) Credential(ctx context.Context) (cred *Credential, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "auth.credential")
	defer func() {
		span.SetAttributes(attribute.String(instrumentation.SpanAttrAuthState, f.State().String()))
		instrumentation.EndSpan(span, err)
	}()

	runCtx := context.WithoutCancel(ctx)
	ch := f.group.DoChan("credential", func() (any, error) {
		return f.run(runCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Flow) run(ctx context.Context) (*Credential, error) {
	cred, ok := f.store.Load()
	if !ok {
		f.transition(ctx, StateNoCredential)
		return f.interactive(ctx)
	}

	if cred.Valid(f.now(), f.scopes) {
		f.transition(ctx, StateAuthenticated)
		return cred, nil
	}

	f.transition(ctx, StateInvalid)
	if cred.RefreshToken == "" || f.refresher == nil {
		return f.interactive(ctx)
	}

	f.transition(ctx, StateRefreshing)
	refreshCtx, cancel := context.WithTimeout(ctx, RefreshTimeout)
	refreshed, err := f.refresher.Refresh(refreshCtx, cred)
	cancel()
	if err == nil && !refreshed.Valid(f.now(), f.scopes) {
		err = errors.New("refreshed credential does not cover the required scopes")
	}
	if err != nil {
		f.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.AuthResultFailure)
		f.logger.Warn("token refresh failed", logging.Err(err))
		f.transition(ctx, StateRefreshFailed)
		return f.interactive(ctx)
	}

	f.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.AuthResultSuccess)
	f.logger.Debug("token refreshed",
		slog.String("access_token", logging.SanitizeToken(refreshed.AccessToken)),
		slog.Time("expiry", refreshed.Expiry))
	f.persist(refreshed)
	f.transition(ctx, StateAuthenticated)
	return refreshed, nil
}

func (f *Flow) interactive(ctx context.Context) (*Credential, error) {
	f.transition(ctx, StateInteractiveAuthRequired)

	var (
		cred *Credential
		err  error
	)
	if f.authorizer == nil {
		err = errors.New("interactive authorization is not available")
	} else {
		cred, err = f.authorizer.Authorize(ctx)
	}
	if err == nil && !cred.Valid(f.now(), f.scopes) {
		err = errors.New("granted scopes do not cover the required scopes")
	}
	if err != nil {
		f.metrics.RecordOAuthAuth(ctx, instrumentation.AuthResultFailure)
		f.transition(ctx, StateFailed)
		return nil, &AuthError{Stage: "authorization", Err: err}
	}

	f.metrics.RecordOAuthAuth(ctx, instrumentation.AuthResultSuccess)
	f.persist(cred)
	f.transition(ctx, StateAuthenticated)
	return cred, nil
}

// persist stores c. Failures are logged, never returned.
func (f *Flow) persist(c *Credential) {
	if err := f.store.Persist(c); err != nil {
		f.logger.Warn("failed to persist credential", logging.Err(err))
	}
}

func (f *Flow) transition(ctx context.Context, to State) {
	f.mu.Lock()
	from := f.state
	f.state = to
	f.mu.Unlock()

	if from == to {
		return
	}
	f.logger.Debug("auth state transition",
		slog.String("from", from.String()),
		logging.State(to))
	f.metrics.RecordAuthTransition(ctx, from.String(), to.String())
	if f.onTransition != nil {
		f.onTransition(from, to)
	}
}
