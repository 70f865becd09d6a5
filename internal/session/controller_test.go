package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayla-health/ayla-cli/internal/autherr"
	"github.com/ayla-health/ayla-cli/internal/logging"
	"github.com/ayla-health/ayla-cli/internal/models"
	"github.com/ayla-health/ayla-cli/internal/store"
)

// ---- helpers ----

var dbSeq int

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	dbSeq++
	dsn := fmt.Sprintf("file:sessiontest%d?mode=memory&cache=shared", dbSeq)
	db, err := store.InitDatabase(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newController(t *testing.T, fc *fakeClient, st *store.Store) *Controller {
	t.Helper()
	c := New(fc, st, logging.NewDefault())
	t.Cleanup(c.Close)
	return c
}

func newEnv(t *testing.T) (*fakeClient, *store.Store, *Controller) {
	t.Helper()
	db := setupDB(t)
	st := store.New(db, store.NewNotifier(), logging.NewDefault())
	fc := &fakeClient{}
	return fc, st, newController(t, fc, st)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for: " + msg)
}

// ---- fake client ----

// fakeClient implements api.Client for controller unit tests.
type fakeClient struct {
	mu sync.Mutex

	LoginProfile *models.UserProfile
	LoginMsg     string
	LoginErr     error
	LoginDelay   time.Duration

	LogoutErr error

	RegisterProfile *models.UserProfile
	RegisterMsg     string
	RegisterErr     error

	CurrentProfile *models.UserProfile
	CurrentErr     error

	loginCalls    int
	logoutCalls   int
	registerCalls int
	currentCalls  int
}

func (f *fakeClient) Login(ctx context.Context, email, password string) (*models.UserProfile, string, error) {
	f.mu.Lock()
	f.loginCalls++
	delay := f.LoginDelay
	profile, msg, err := f.LoginProfile, f.LoginMsg, f.LoginErr
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return profile.Clone(), msg, err
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
	return f.LogoutErr
}

func (f *fakeClient) Register(ctx context.Context, data models.RegisterData) (*models.UserProfile, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	return f.RegisterProfile.Clone(), f.RegisterMsg, f.RegisterErr
}

func (f *fakeClient) CurrentUser(ctx context.Context) (*models.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentCalls++
	if f.CurrentErr != nil {
		return nil, f.CurrentErr
	}
	return f.CurrentProfile.Clone(), nil
}

func (f *fakeClient) ValidateSession(ctx context.Context) bool {
	_, err := f.CurrentUser(ctx)
	return err == nil
}

func (f *fakeClient) TodayActivity(ctx context.Context) (*models.ActivitySummary, error) {
	return nil, autherr.New(autherr.Internal, "not implemented", nil)
}

func (f *fakeClient) Close() error { return nil }

func (f *fakeClient) calls(which string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch which {
	case "login":
		return f.loginCalls
	case "logout":
		return f.logoutCalls
	case "register":
		return f.registerCalls
	case "current":
		return f.currentCalls
	}
	return 0
}

var ada = &models.UserProfile{ID: "u1", Email: "ada@example.com", FirstName: "Ada"}

// ---- TESTS ----

func TestLogin_ValidCredentials_Authenticates(t *testing.T) {
	fc, st, c := newEnv(t)
	fc.LoginProfile = ada
	fc.LoginMsg = "welcome"
	ctx := context.Background()

	require.Nil(t, c.Snapshot().Profile)

	got, err := c.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, ada, got, "profile must equal the backend's value exactly")

	state := c.Snapshot()
	require.True(t, state.Authenticated())
	assert.Equal(t, ada, state.Profile)
	assert.False(t, state.Loading)
	assert.NoError(t, state.Err)

	assert.Equal(t, ada, st.CachedProfile(ctx), "successful login must warm the cache")
}

func TestLogin_InvalidCredentials_StaysAnonymous(t *testing.T) {
	fc, st, c := newEnv(t)
	fc.LoginErr = autherr.New(autherr.InvalidCredentials, "invalid email or password", nil)
	ctx := context.Background()

	_, err := c.Login(ctx, "ada@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, autherr.IsInvalidCredentials(err), "failure must be reported to the caller")

	state := c.Snapshot()
	assert.False(t, state.Authenticated())
	assert.True(t, autherr.IsInvalidCredentials(state.Err), "failure must also be recorded in shared state")
	assert.Nil(t, st.CachedProfile(ctx), "no profile may be cached")
}

func TestLogout_ClearsEverythingEvenWhenServerFails(t *testing.T) {
	fc, st, c := newEnv(t)
	fc.LoginProfile = ada
	fc.LogoutErr = autherr.New(autherr.ServerUnavailable, "server unavailable", nil)
	ctx := context.Background()

	_, err := c.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	st.SaveToken(ctx, "tok-123")

	c.Logout(ctx)

	state := c.Snapshot()
	assert.False(t, state.Authenticated())
	assert.NoError(t, state.Err, "server-side logout failure is logged, not surfaced")
	assert.Empty(t, st.Token(ctx))
	assert.Nil(t, st.CachedProfile(ctx))
	assert.Equal(t, 1, fc.calls("logout"))
}

func TestLogout_WhenAnonymousIsNoOp(t *testing.T) {
	_, st, c := newEnv(t)
	ctx := context.Background()

	assert.NotPanics(t, func() { c.Logout(ctx) })
	assert.False(t, c.Snapshot().Authenticated())
	assert.Empty(t, st.Token(ctx))
}

func TestLogout_EmitsSignInNavigationIntent(t *testing.T) {
	fc, _, c := newEnv(t)
	fc.LoginProfile = ada
	ctx := context.Background()

	_, err := c.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	id, events := c.Subscribe()
	t.Cleanup(func() { c.Unsubscribe(id) })

	c.Logout(ctx)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.SignedOut {
				assert.Nil(t, ev.State.Profile)
				return
			}
		case <-deadline:
			t.Fatal("no SignedOut event observed")
		}
	}
}

func TestRegister_LocalValidationSkipsNetwork(t *testing.T) {
	tests := []struct {
		name string
		data models.RegisterData
	}{
		{
			name: "password too short",
			data: models.RegisterData{Email: "a@b.c", Password: "abc12", ConfirmPassword: "abc12"},
		},
		{
			name: "password mismatch",
			data: models.RegisterData{Email: "a@b.c", Password: "abc123", ConfirmPassword: "abc124"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc, _, c := newEnv(t)

			_, _, err := c.Register(context.Background(), tt.data)
			require.Error(t, err)
			assert.True(t, autherr.IsValidationFailed(err))
			assert.Equal(t, 0, fc.calls("register"), "validation failure must issue zero network calls")
			assert.True(t, autherr.IsValidationFailed(c.Snapshot().Err))
		})
	}
}

func TestRegister_DoesNotAuthenticate(t *testing.T) {
	fc, _, c := newEnv(t)
	fc.RegisterProfile = ada
	fc.RegisterMsg = "account created"

	profile, msg, err := c.Register(context.Background(), models.RegisterData{
		Email: "ada@example.com", Password: "secret1", ConfirmPassword: "secret1",
	})
	require.NoError(t, err)
	assert.Equal(t, ada, profile)
	assert.Equal(t, "account created", msg)
	assert.Equal(t, 1, fc.calls("register"))
	assert.False(t, c.Snapshot().Authenticated(), "register must not imply a session")
}

func TestBootstrap_FreshProfileWins(t *testing.T) {
	fc, st, c := newEnv(t)
	ctx := context.Background()

	stale := &models.UserProfile{ID: "u1", Email: "ada@example.com", FirstName: "Old"}
	st.SaveProfile(ctx, stale)
	fresh := &models.UserProfile{ID: "u1", Email: "ada@example.com", FirstName: "Ada"}
	fc.CurrentProfile = fresh

	c.Bootstrap(ctx)

	state := c.Snapshot()
	require.True(t, state.Authenticated())
	assert.Equal(t, fresh, state.Profile)
	assert.False(t, state.Loading)
	assert.Equal(t, fresh, st.CachedProfile(ctx), "cache must be refreshed")
}

func TestBootstrap_StaleCacheSurvivesServerOutage(t *testing.T) {
	fc, st, c := newEnv(t)
	ctx := context.Background()

	st.SaveProfile(ctx, ada)
	fc.CurrentErr = autherr.New(autherr.ServerUnavailable, "server unavailable", nil)

	c.Bootstrap(ctx)

	state := c.Snapshot()
	require.True(t, state.Authenticated(), "a network hiccup must not sign the user out")
	assert.Equal(t, ada, state.Profile)
	assert.True(t, autherr.IsServerUnavailable(state.Err))
}

func TestBootstrap_NoCacheNoSession_SettlesAnonymous(t *testing.T) {
	fc, _, c := newEnv(t)
	fc.CurrentErr = autherr.New(autherr.ServerUnavailable, "server unavailable", nil)

	c.Bootstrap(context.Background())

	state := c.Snapshot()
	assert.False(t, state.Authenticated())
	assert.False(t, state.Loading)
}

func TestBootstrap_RejectedSessionForcesSignOut(t *testing.T) {
	fc, st, c := newEnv(t)
	ctx := context.Background()

	st.SaveProfile(ctx, ada)
	st.SaveToken(ctx, "expired")
	fc.CurrentErr = autherr.New(autherr.Unauthenticated, "session expired", nil)

	c.Bootstrap(ctx)

	assert.False(t, c.Snapshot().Authenticated())
	assert.Empty(t, st.Token(ctx))
	assert.Nil(t, st.CachedProfile(ctx))
}

func TestRefreshUser(t *testing.T) {
	fc, st, c := newEnv(t)
	fc.LoginProfile = ada
	ctx := context.Background()

	_, err := c.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)

	t.Run("success replaces profile", func(t *testing.T) {
		fresh := &models.UserProfile{ID: "u1", Email: "ada@example.com", FirstName: "Augusta"}
		fc.mu.Lock()
		fc.CurrentProfile = fresh
		fc.mu.Unlock()

		require.NoError(t, c.RefreshUser(ctx))
		assert.Equal(t, fresh, c.Snapshot().Profile)
		assert.Equal(t, fresh, st.CachedProfile(ctx))
	})

	t.Run("failure retains previous profile", func(t *testing.T) {
		before := c.Snapshot().Profile
		fc.mu.Lock()
		fc.CurrentErr = autherr.New(autherr.ServerUnavailable, "server unavailable", nil)
		fc.mu.Unlock()

		err := c.RefreshUser(ctx)
		require.Error(t, err)

		state := c.Snapshot()
		assert.Equal(t, before, state.Profile, "refresh failure is non-fatal")
		assert.True(t, autherr.IsServerUnavailable(state.Err))
	})
}

func TestForcedSignOut_LateLoginSuccessDoesNotResurrect(t *testing.T) {
	fc, st, c := newEnv(t)
	fc.LoginProfile = ada
	fc.LoginDelay = 500 * time.Millisecond
	ctx := context.Background()

	type loginResult struct {
		profile *models.UserProfile
		err     error
	}
	resultCh := make(chan loginResult, 1)
	go func() {
		p, err := c.Login(ctx, "ada@example.com", "secret1")
		resultCh <- loginResult{p, err}
	}()

	// 100ms into the login, an unrelated call reports a 401
	time.Sleep(100 * time.Millisecond)
	c.ForceSignOut()

	res := <-resultCh
	require.Error(t, res.err)
	assert.True(t, autherr.IsUnauthenticated(res.err))

	state := c.Snapshot()
	assert.False(t, state.Authenticated(), "late login success must not override the forced sign-out")
	assert.Empty(t, st.Token(ctx))
	assert.Nil(t, st.CachedProfile(ctx))
}

func TestCrossTabSync(t *testing.T) {
	db := setupDB(t)
	notifier := store.NewNotifier()
	log := logging.NewDefault()
	ctx := context.Background()

	stA := store.New(db, notifier, log)
	stB := store.New(db, notifier, log)
	fcA := &fakeClient{LoginProfile: ada}
	fcB := &fakeClient{}
	tabA := newController(t, fcA, stA)
	tabB := newController(t, fcB, stB)

	// tab A signs in; tab B adopts the profile without a network call
	_, err := tabA.Login(ctx, "ada@example.com", "secret1")
	require.NoError(t, err)
	waitFor(t, func() bool { return tabB.Snapshot().Authenticated() }, "tab B adopting the sign-in")
	assert.Equal(t, ada, tabB.Snapshot().Profile)
	assert.Equal(t, 0, fcB.calls("current"), "adoption must not hit the network")

	// a third context clears the storage; every live controller signs out
	writer := store.New(db, notifier, log)
	writer.Clear(ctx)

	waitFor(t, func() bool { return !tabA.Snapshot().Authenticated() }, "tab A signing out")
	waitFor(t, func() bool { return !tabB.Snapshot().Authenticated() }, "tab B signing out")
	assert.Equal(t, 0, fcA.calls("current"))
	assert.Equal(t, 0, fcB.calls("current"))
}

func TestCrossTabSync_MalformedForeignValueIsAnonymous(t *testing.T) {
	db := setupDB(t)
	notifier := store.NewNotifier()
	log := logging.NewDefault()

	st := store.New(db, notifier, log)
	fc := &fakeClient{LoginProfile: ada}
	c := newController(t, fc, st)

	_, err := c.Login(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	notifier.Publish(store.Change{Origin: "other-tab", Profile: []byte(`{broken`)})

	waitFor(t, func() bool { return !c.Snapshot().Authenticated() }, "malformed value degrading to anonymous")
}

func TestSubscribe_ReceivesStateSnapshots(t *testing.T) {
	fc, _, c := newEnv(t)
	fc.LoginProfile = ada

	id, events := c.Subscribe()
	t.Cleanup(func() { c.Unsubscribe(id) })

	_, err := c.Login(context.Background(), "ada@example.com", "secret1")
	require.NoError(t, err)

	sawLoading, sawAuthenticated := false, false
	deadline := time.After(2 * time.Second)
	for !sawAuthenticated {
		select {
		case ev := <-events:
			if ev.State.Loading {
				sawLoading = true
			}
			if ev.State.Authenticated() && !ev.State.Loading {
				sawAuthenticated = true
			}
		case <-deadline:
			t.Fatal("did not observe the expected snapshots")
		}
	}
	assert.True(t, sawLoading, "the in-flight phase must be observable")
}

func TestClose_IsIdempotentAndClosesSubscribers(t *testing.T) {
	_, st, _ := newEnv(t)
	fc := &fakeClient{}
	c := New(fc, st, logging.NewDefault())

	_, events := c.Subscribe()

	c.Close()
	assert.NotPanics(t, c.Close)

	_, open := <-events
	assert.False(t, open)
}
