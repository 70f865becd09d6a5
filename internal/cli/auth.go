package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/ayla-health/ayla-cli/internal/autherr"
	"github.com/ayla-health/ayla-cli/internal/models"
)

// getSimpleText and getPassword are indirections used to facilitate
// testing. They point to the interactive input helpers and can be swapped
// in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Login prompts for credentials and signs in through the session
// controller. Failure messages are rendered inline, as the sign-in form
// would show them.
func (a *App) Login(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer wipeBytes(password)

	profile, err := a.ctrl.Login(ctx, email, string(password))
	if err != nil {
		fmt.Println("Sign-in failed:", autherr.MessageOf(err))
		return err
	}

	fmt.Printf("Signed in as %s\n", profile.DisplayName())
	return nil
}

// Register prompts for registration data and creates an account. The
// controller validates locally before any network call; validation errors
// render inline on the form.
func (a *App) Register(ctx context.Context) error {
	email, err := getSimpleText(a.reader, "Enter email", os.Stdout)
	if err != nil {
		return err
	}

	password, err := getPassword("Enter password", os.Stdout)
	if err != nil {
		return err
	}
	defer wipeBytes(password)

	confirm, err := getPassword("Confirm password", os.Stdout)
	if err != nil {
		return err
	}
	defer wipeBytes(confirm)

	firstName, err := getSimpleText(a.reader, "First name (optional)", os.Stdout)
	if err != nil {
		return err
	}
	lastName, err := getSimpleText(a.reader, "Last name (optional)", os.Stdout)
	if err != nil {
		return err
	}

	data := models.RegisterData{
		Email:           email,
		Password:        string(password),
		ConfirmPassword: string(confirm),
		FirstName:       firstName,
		LastName:        lastName,
	}

	_, msg, err := a.ctrl.Register(ctx, data)
	if err != nil {
		fmt.Println("Registration failed:", autherr.MessageOf(err))
		return err
	}

	if msg == "" {
		msg = "Account created. Use 'login' to sign in."
	}
	fmt.Println(msg)
	return nil
}

// Logout signs out. It always succeeds locally, even when the server-side
// invalidation fails.
func (a *App) Logout(ctx context.Context) error {
	a.ctrl.Logout(ctx)
	fmt.Println("Signed out.")
	return nil
}
