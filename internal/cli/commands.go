package cli

import (
	"context"
	"fmt"

	"github.com/ayla-health/ayla-cli/internal/autherr"
)

// requireAuth is the route guard: protected commands refuse to run while
// the controller is anonymous.
func (a *App) requireAuth() bool {
	if !a.isLoggedIn() {
		fmt.Println("Please sign in first ('login').")
		return false
	}
	return true
}

// Whoami prints the signed-in profile.
func (a *App) Whoami(ctx context.Context) error {
	if !a.requireAuth() {
		return nil
	}

	profile := a.ctrl.Snapshot().Profile
	fmt.Printf("%s <%s>\n", profile.DisplayName(), profile.Email)
	return nil
}

// Refresh re-fetches the canonical profile from the backend.
func (a *App) Refresh(ctx context.Context) error {
	if !a.requireAuth() {
		return nil
	}

	if err := a.ctrl.RefreshUser(ctx); err != nil {
		fmt.Println("Refresh failed:", autherr.MessageOf(err))
		return err
	}
	fmt.Println("Profile refreshed.")
	return nil
}

// Activity shows today's health activity summary.
func (a *App) Activity(ctx context.Context) error {
	if !a.requireAuth() {
		return nil
	}

	summary, err := a.client.TodayActivity(ctx)
	if err != nil {
		fmt.Println("Could not load today's activity:", autherr.MessageOf(err))
		return err
	}

	fmt.Printf("Today (%s): %d steps, %d active minutes, %.0f kcal\n",
		summary.Date, summary.Steps, summary.ActiveMinutes, summary.Calories)
	if summary.SleepHours > 0 {
		fmt.Printf("Sleep: %.1f hours\n", summary.SleepHours)
	}
	return nil
}
