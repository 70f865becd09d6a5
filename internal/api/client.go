// Package api contains the client-side gateway to the Ayla identity and
// activity endpoints.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic contract (see the Client interface) covering
//     every network operation the session core performs: Login, Logout,
//     Register, CurrentUser, ValidateSession, and TodayActivity.
//  2. A concrete HTTP implementation (see HTTPClient) that speaks JSON to
//     the backend, carries the session cookie and bearer header, mirrors
//     the session token into the local store, and maps HTTP failures onto
//     the autherr taxonomy.
//
// # Error Handling
//
// All failures are *autherr.Error values; callers switch on the kind via
// autherr.KindOf or the Is* helpers. A 401 on any authenticated call clears
// the token store and fires the unauthenticated hook: this is the system's
// single point of forced de-authentication.
//
// All operations accept context.Context and honor cancellation/timeouts.
package api

import (
	"context"

	"github.com/ayla-health/ayla-cli/internal/models"
)

// Client is the only component allowed to perform network I/O for identity
// operations.
type Client interface {
	// Login authenticates with email/password. On success the backend sets
	// the session cookie; the returned profile and human-readable message
	// come from the response body.
	Login(ctx context.Context, email, password string) (*models.UserProfile, string, error)

	// Logout requests server-side session invalidation. Best effort: the
	// caller must clear local state regardless of the outcome.
	Logout(ctx context.Context) error

	// Register creates an account. It does not imply an authenticated
	// session; the profile may be nil when the backend withholds it.
	Register(ctx context.Context, data models.RegisterData) (*models.UserProfile, string, error)

	// CurrentUser validates the bearer token and returns the canonical
	// profile, failing with Unauthenticated when the token is absent,
	// invalid, or expired.
	CurrentUser(ctx context.Context) (*models.UserProfile, error)

	// ValidateSession is the non-throwing liveness probe: any failure
	// collapses to false.
	ValidateSession(ctx context.Context) bool

	// TodayActivity fetches the user's activity summary for the current
	// day. Requires an authenticated session.
	TodayActivity(ctx context.Context) (*models.ActivitySummary, error)

	// Close releases underlying transport resources.
	Close() error
}
