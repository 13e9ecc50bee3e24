package google

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	calls  atomic.Int32
	result func(*Credential) (*Credential, error)
}

func (r *fakeRefresher) Refresh(_ context.Context, c *Credential) (*Credential, error) {
	r.calls.Add(1)
	return r.result(c)
}

type fakeAuthorizer struct {
	calls atomic.Int32
	delay time.Duration
	cred  *Credential
	err   error
}

func (a *fakeAuthorizer) Authorize(ctx context.Context) (*Credential, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.cred, a.err
}

type failingStore struct {
	cred *Credential
}

func (s *failingStore) Load() (*Credential, bool) { return s.cred, s.cred != nil }
func (s *failingStore) Persist(*Credential) error { return errors.New("disk full") }

type transitions struct {
	mu   sync.Mutex
	seen []State
}

func (tr *transitions) hook(_, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.seen = append(tr.seen, to)
}

func (tr *transitions) states() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.seen...)
}

func freshCredential(expiry time.Time) *Credential {
	return &Credential{
		AccessToken:  "fresh",
		RefreshToken: "refresh",
		Expiry:       expiry,
		Scopes:       RequiredScopes,
	}
}

func TestFlow_RefreshesExpiredCredential(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	oldExpiry := now.Add(-time.Hour)
	require.NoError(t, store.Persist(&Credential{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       oldExpiry,
		Scopes:       RequiredScopes,
	}))

	refresher := &fakeRefresher{result: func(c *Credential) (*Credential, error) {
		assert.Equal(t, "refresh", c.RefreshToken)
		return freshCredential(now.Add(time.Hour)), nil
	}}
	authorizer := &fakeAuthorizer{err: errors.New("must not be called")}
	tr := &transitions{}

	flow := NewFlow(store, refresher, authorizer,
		WithClock(func() time.Time { return now }),
		WithTransitionHook(tr.hook))

	cred, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, StateAuthenticated, flow.State())
	assert.Equal(t, []State{StateInvalid, StateRefreshing, StateAuthenticated}, tr.states())
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(0), authorizer.calls.Load())

	persisted, ok := store.Load()
	require.True(t, ok)
	assert.Equal(t, "fresh", persisted.AccessToken)
	assert.True(t, persisted.Expiry.After(oldExpiry))
}

func TestFlow_InteractiveWhenAbsentOrUnparsable(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		setup func(path string)
	}{
		{name: "absent", setup: func(string) {}},
		{name: "unparsable", setup: func(path string) {
			require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			tt.setup(path)
			store := NewFileStore(path)

			refresher := &fakeRefresher{result: func(*Credential) (*Credential, error) {
				return nil, errors.New("must not be called")
			}}
			authorizer := &fakeAuthorizer{cred: freshCredential(now.Add(time.Hour))}
			tr := &transitions{}

			flow := NewFlow(store, refresher, authorizer,
				WithClock(func() time.Time { return now }),
				WithTransitionHook(tr.hook))

			cred, err := flow.Credential(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "fresh", cred.AccessToken)
			assert.Equal(t, int32(1), authorizer.calls.Load())
			assert.Equal(t, int32(0), refresher.calls.Load())
			assert.Equal(t, []State{StateInteractiveAuthRequired, StateAuthenticated}, tr.states())

			_, ok := store.Load()
			assert.True(t, ok, "interactive result must be persisted")
		})
	}
}

func TestFlow_ValidCredentialIsReusedWithoutPersist(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := &failingStore{cred: freshCredential(now.Add(time.Hour))}
	refresher := &fakeRefresher{result: func(*Credential) (*Credential, error) { return nil, errors.New("unused") }}

	flow := NewFlow(store, refresher, nil, WithClock(func() time.Time { return now }))

	cred, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, int32(0), refresher.calls.Load())
}

func TestFlow_RefreshFailureFallsBackToInteractive(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Persist(&Credential{
		AccessToken:  "stale",
		RefreshToken: "revoked",
		Expiry:       now.Add(-time.Hour),
		Scopes:       RequiredScopes,
	}))

	refresher := &fakeRefresher{result: func(*Credential) (*Credential, error) {
		return nil, errors.New("invalid_grant")
	}}
	authorizer := &fakeAuthorizer{cred: freshCredential(now.Add(time.Hour))}
	tr := &transitions{}

	flow := NewFlow(store, refresher, authorizer,
		WithClock(func() time.Time { return now }),
		WithTransitionHook(tr.hook))

	_, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateInvalid,
		StateRefreshing,
		StateRefreshFailed,
		StateInteractiveAuthRequired,
		StateAuthenticated,
	}, tr.states())
}

func TestFlow_InvalidWithoutRefreshToken(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	require.NoError(t, store.Persist(&Credential{
		AccessToken: "stale",
		Expiry:      now.Add(-time.Hour),
		Scopes:      RequiredScopes,
	}))

	refresher := &fakeRefresher{result: func(*Credential) (*Credential, error) { return nil, errors.New("unused") }}
	authorizer := &fakeAuthorizer{cred: freshCredential(now.Add(time.Hour))}

	flow := NewFlow(store, refresher, authorizer, WithClock(func() time.Time { return now }))

	_, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), refresher.calls.Load())
	assert.Equal(t, int32(1), authorizer.calls.Load())
}

func TestFlow_InteractiveFailure(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "token.json"))
	authorizer := &fakeAuthorizer{err: errors.New("user closed the browser")}

	flow := NewFlow(store, nil, authorizer)

	cred, err := flow.Credential(context.Background())
	assert.Nil(t, cred)
	require.Error(t, err)

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "authorization", authErr.Stage)
	assert.True(t, IsAuthError(err))
	assert.Equal(t, StateFailed, flow.State())

	_, ok := store.Load()
	assert.False(t, ok)
}

func TestFlow_InteractiveWithoutAuthorizer(t *testing.T) {
	flow := NewFlow(NewFileStore(filepath.Join(t.TempDir(), "token.json")), nil, nil)

	_, err := flow.Credential(context.Background())
	assert.True(t, IsAuthError(err))
}

func TestFlow_InsufficientGrantedScopes(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	granted := freshCredential(now.Add(time.Hour))
	granted.Scopes = RequiredScopes[:1]
	authorizer := &fakeAuthorizer{cred: granted}

	flow := NewFlow(NewFileStore(filepath.Join(t.TempDir(), "token.json")), nil, authorizer,
		WithClock(func() time.Time { return now }))

	_, err := flow.Credential(context.Background())
	assert.True(t, IsAuthError(err))
}

func TestFlow_PersistFailureStillAuthenticates(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	store := &failingStore{cred: &Credential{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		Expiry:       now.Add(-time.Hour),
		Scopes:       RequiredScopes,
	}}
	refresher := &fakeRefresher{result: func(*Credential) (*Credential, error) {
		return freshCredential(now.Add(time.Hour)), nil
	}}

	flow := NewFlow(store, refresher, nil, WithClock(func() time.Time { return now }))

	cred, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
	assert.Equal(t, StateAuthenticated, flow.State())
}

func TestFlow_ConcurrentCallersShareOneRun(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	authorizer := &fakeAuthorizer{
		cred:  freshCredential(now.Add(time.Hour)),
		delay: 100 * time.Millisecond,
	}
	// Persisting to a failing store keeps every run on the interactive path.
	flow := NewFlow(&failingStore{}, nil, authorizer, WithClock(func() time.Time { return now }))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := flow.Credential(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Less(t, authorizer.calls.Load(), int32(callers))
}

func TestFlow_CancelledCallerDoesNotFailSharedRun(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	authorizer := &fakeAuthorizer{
		cred:  freshCredential(now.Add(time.Hour)),
		delay: 200 * time.Millisecond,
	}
	flow := NewFlow(&failingStore{}, nil, authorizer, WithClock(func() time.Time { return now }))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := flow.Credential(ctxA)
		errA <- err
	}()
	require.Eventually(t, func() bool { return authorizer.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		cred *Credential
		err  error
	}
	resB := make(chan outcome, 1)
	go func() {
		cred, err := flow.Credential(context.Background())
		resB <- outcome{cred: cred, err: err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsAuthError(err))
	case <-time.After(100 * time.Millisecond):
		t.Fatal("cancelled caller did not return promptly")
	}

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "fresh", b.cred.AccessToken)
	assert.Equal(t, int32(1), authorizer.calls.Load())
	assert.Equal(t, StateAuthenticated, flow.State())
}

type blockingRefresher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	ctxErr  atomic.Value
	cred    *Credential
}

func (r *blockingRefresher) Refresh(ctx context.Context, _ *Credential) (*Credential, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	if err := ctx.Err(); err != nil {
		r.ctxErr.Store(err)
		return nil, err
	}
	return r.cred, nil
}

func TestFlow_RefreshOutlivesCancelledCaller(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	refresher := &blockingRefresher{
		started: make(chan struct{}),
		release: make(chan struct{}),
		cred:    freshCredential(now.Add(time.Hour)),
	}
	store := &failingStore{cred: freshCredential(now.Add(-time.Hour))}
	flow := NewFlow(store, refresher, nil, WithClock(func() time.Time { return now }))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := flow.Credential(ctx)
		errCh <- err
	}()
	<-refresher.started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(refresher.release)
	cred, err := flow.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), cred.Expiry)
	assert.Nil(t, refresher.ctxErr.Load(), "refresh saw the cancelled caller's context")
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "refreshing", StateRefreshing.String())
	assert.Equal(t, "interactive_auth_required", StateInteractiveAuthRequired.String())
	assert.Equal(t, "unknown", State(99).String())
}
