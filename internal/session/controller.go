// Package session owns the single source of truth for "who is currently
// signed in" within one running client instance.
//
// # Overview
//
// The Controller tracks the authenticated profile, reconciles it with the
// remote identity API through the api.Client, keeps the local token store
// warm, and fans out state snapshots to consumers through an observer-style
// subscription. Independent controller instances sharing one token store
// (separate tabs of the same origin, in browser terms) reconcile through
// the store's change notifier.
//
// # State machine
//
// A controller starts bootstrapping (Loading=true), then settles either
// authenticated or anonymous. Login, Logout, Register and RefreshUser move
// between those states; a forced sign-out (401 from any call) preempts
// whatever is in flight. Logical races between overlapping async
// completions are resolved with a monotonic generation counter: every
// state-committing completion captures the generation at operation start
// and commits only if it is unchanged, so a stale login success can never
// resurrect a cleared session.
//
// The controller never navigates. It emits a SignedOut event (the
// navigation intent toward the sign-in entry point) and leaves routing to
// its consumers.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayla-health/ayla-cli/internal/api"
	"github.com/ayla-health/ayla-cli/internal/autherr"
	"github.com/ayla-health/ayla-cli/internal/logging"
	"github.com/ayla-health/ayla-cli/internal/models"
	"github.com/ayla-health/ayla-cli/internal/store"
)

// State is the externally observable session state.
type State struct {
	// Profile is the signed-in principal, nil when anonymous.
	Profile *models.UserProfile
	// Loading reports an operation in flight (bootstrap included).
	Loading bool
	// Err is the last recorded operation error, nil after a success.
	Err error
}

// Authenticated reports whether a principal is signed in.
func (s State) Authenticated() bool {
	return s.Profile != nil
}

// Event is delivered to subscribers on every state change. SignedOut marks
// a transition out of the authenticated state that should land the user on
// the sign-in entry point.
type Event struct {
	State     State
	SignedOut bool
}

// Controller is the session state container. One per running client
// instance; safe for concurrent use.
type Controller struct {
	api   api.Client
	store *store.Store
	log   logging.Logger

	mu      sync.Mutex
	profile *models.UserProfile
	loading bool
	lastErr error
	gen     uint64

	subsMu sync.Mutex
	subs   map[string]chan Event

	watchID string
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
}

// unauthenticatedHooker is implemented by clients that can report a 401
// from any call (see api.HTTPClient.SetUnauthenticatedHook).
type unauthenticatedHooker interface {
	SetUnauthenticatedHook(fn func())
}

// New creates a Controller in the bootstrapping state and starts watching
// the store for foreign changes. If the client supports it, the forced
// sign-out hook is wired automatically. Call Close when done.
func New(apiClient api.Client, st *store.Store, log logging.Logger) *Controller {
	c := &Controller{
		api:     apiClient,
		store:   st,
		log:     log,
		loading: true,
		subs:    make(map[string]chan Event),
		done:    make(chan struct{}),
	}

	if h, ok := apiClient.(unauthenticatedHooker); ok {
		h.SetUnauthenticatedHook(c.ForceSignOut)
	}

	id, ch := st.Notifier().Subscribe()
	c.watchID = id
	c.wg.Add(1)
	go c.watchStore(ch)

	return c
}

// Close stops the store watcher and closes all subscriber channels. The
// controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.store.Notifier().Unsubscribe(c.watchID)
	c.wg.Wait()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers a consumer. Events are delivered on a buffered
// channel; a consumer that stops draining loses events rather than
// blocking the controller.
func (c *Controller) Subscribe() (string, <-chan Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, 16)
	c.subs[id] = ch
	return id, ch
}

// Unsubscribe removes the consumer and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	if ch, ok := c.subs[id]; ok {
		close(ch)
		delete(c.subs, id)
	}
}

// Bootstrap resolves the initial session state: it surfaces the cached
// profile immediately so consumers can render, then revalidates against
// the backend. A revalidation failure that is not a 401 keeps the cached
// profile; a network hiccup must not sign the user out.
func (c *Controller) Bootstrap(ctx context.Context) {
	cached := c.store.CachedProfile(ctx)

	c.mu.Lock()
	g := c.gen
	c.loading = true
	if cached != nil {
		c.profile = cached
	}
	c.mu.Unlock()
	c.notify(false)

	fresh, err := c.api.CurrentUser(ctx)
	if err != nil {
		if autherr.IsUnauthenticated(err) {
			c.ForceSignOut()
			c.settle(g, nil)
			return
		}
		c.log.Warn(ctx, "session revalidation failed", "error", err)
		if cached != nil {
			// degrade gracefully: keep serving the stale profile
			c.settle(g, func() { c.lastErr = err })
			return
		}
		c.settle(g, func() {
			c.profile = nil
			c.lastErr = err
		})
		return
	}

	if c.settle(g, func() {
		c.profile = fresh.Clone()
		c.lastErr = nil
	}) {
		c.store.SaveProfile(ctx, fresh)
	}
}

// Login authenticates with the given credentials. On success the profile
// is cached and the controller settles authenticated; on failure any stale
// cache is cleared, the error is recorded, and the controller settles
// anonymous. The error is also returned so the sign-in form can render it.
func (c *Controller) Login(ctx context.Context, email, password string) (*models.UserProfile, error) {
	g := c.begin()

	profile, msg, err := c.api.Login(ctx, email, password)
	if err != nil {
		c.store.Clear(ctx)
		c.settle(g, func() {
			c.profile = nil
			c.lastErr = err
		})
		return nil, err
	}
	c.log.Debug(ctx, "login succeeded", "message", msg)

	if !c.settle(g, func() {
		c.profile = profile.Clone()
		c.lastErr = nil
	}) {
		// a forced sign-out or logout preempted this completion
		return nil, autherr.New(autherr.Unauthenticated, "session ended before sign-in completed", nil)
	}
	c.store.SaveProfile(ctx, profile)
	return profile, nil
}

// Logout clears local state unconditionally, attempts best-effort
// server-side invalidation, settles anonymous, and emits the navigation
// intent toward sign-in. Calling it while already anonymous is a no-op
// that still leaves the state anonymous.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	c.loading = true
	c.mu.Unlock()
	c.notify(false)

	c.store.Clear(ctx)

	if err := c.api.Logout(ctx); err != nil {
		c.log.Warn(ctx, "server-side logout failed", "error", err)
	}

	c.mu.Lock()
	c.profile = nil
	c.lastErr = nil
	c.loading = false
	c.mu.Unlock()
	c.notify(true)
}

// Register creates an account. Local preconditions are validated first: a
// violation fails fast with ValidationFailed and performs no network call.
// Registration never implies a session; the controller state does not
// become authenticated.
func (c *Controller) Register(ctx context.Context, data models.RegisterData) (*models.UserProfile, string, error) {
	if err := data.Validate(); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		c.notify(false)
		return nil, "", err
	}

	g := c.begin()
	profile, msg, err := c.api.Register(ctx, data)
	if err != nil {
		c.settle(g, func() { c.lastErr = err })
		return nil, "", err
	}
	c.settle(g, func() { c.lastErr = nil })
	return profile, msg, nil
}

// RefreshUser re-fetches the canonical profile. Failure is non-fatal: the
// previous profile is retained and the error recorded, unless the backend
// rejected the session outright.
func (c *Controller) RefreshUser(ctx context.Context) error {
	g := c.begin()

	fresh, err := c.api.CurrentUser(ctx)
	if err != nil {
		if autherr.IsUnauthenticated(err) {
			c.ForceSignOut()
			c.settle(g, nil)
			return err
		}
		c.settle(g, func() { c.lastErr = err })
		return err
	}

	if c.settle(g, func() {
		c.profile = fresh.Clone()
		c.lastErr = nil
	}) {
		c.store.SaveProfile(ctx, fresh)
	}
	return nil
}

// ForceSignOut is the forced de-authentication transition: it preempts any
// in-flight operation, clears the token store, settles anonymous, and
// emits the sign-in navigation intent. Wired as the api client's 401 hook;
// safe to call from any goroutine at any time.
func (c *Controller) ForceSignOut() {
	c.mu.Lock()
	c.gen++
	c.profile = nil
	c.lastErr = nil
	c.mu.Unlock()

	c.store.Clear(context.Background())
	c.notify(true)
}

// StartRevalidation periodically probes session liveness while a profile
// is held. How long a stale profile may be served is a policy decision:
// interval <= 0 disables the probe entirely. A 401 surfaces through the
// client's forced sign-out hook; other failures are logged and tolerated.
func (c *Controller) StartRevalidation(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !c.Snapshot().Authenticated() {
				continue
			}
			probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			ok := c.api.ValidateSession(probeCtx)
			cancel()
			if !ok {
				c.log.Warn(ctx, "periodic session revalidation failed")
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// watchStore adopts storage mutations performed by other execution
// contexts: a foreign clear forces anonymous, a foreign profile write is
// adopted verbatim. Malformed foreign values degrade to anonymous.
func (c *Controller) watchStore(ch <-chan store.Change) {
	defer c.wg.Done()

	for {
		select {
		case change, ok := <-ch:
			if !ok {
				return
			}
			if change.Origin == c.store.Origin() {
				continue
			}
			c.adopt(change)
		case <-c.done:
			return
		}
	}
}

func (c *Controller) adopt(change store.Change) {
	profile := store.DecodeProfile(change.Profile)

	c.mu.Lock()
	c.gen++
	signedOut := false
	if change.Cleared || profile == nil {
		signedOut = c.profile != nil
		c.profile = nil
	} else {
		c.profile = profile
	}
	c.lastErr = nil
	c.mu.Unlock()

	c.notify(signedOut)
}

// begin marks an operation in flight and returns the generation it must
// present when committing.
func (c *Controller) begin() uint64 {
	c.mu.Lock()
	c.loading = true
	g := c.gen
	c.mu.Unlock()
	c.notify(false)
	return g
}

// settle clears the in-flight flag and applies the state mutation only if
// the operation's generation is still current. Returns whether the
// mutation was applied.
func (c *Controller) settle(g uint64, apply func()) bool {
	c.mu.Lock()
	applied := c.gen == g
	if applied && apply != nil {
		apply()
	}
	c.loading = false
	c.mu.Unlock()
	c.notify(false)
	return applied
}

func (c *Controller) stateLocked() State {
	return State{
		Profile: c.profile.Clone(),
		Loading: c.loading,
		Err:     c.lastErr,
	}
}

func (c *Controller) notify(signedOut bool) {
	c.mu.Lock()
	event := Event{State: c.stateLocked(), SignedOut: signedOut}
	c.mu.Unlock()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
