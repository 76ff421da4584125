// Package session resolves the current user's identity once and passes
// it into the engine explicitly.
package session

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
)

// Session is the identity of the signed-in user for the lifetime of a
// conversation screen.
type Session struct {
	UserID   string
	Username string
}

// FromIDToken verifies a Firebase ID token and builds the session from
// its uid and name claim.
func FromIDToken(ctx context.Context, idToken string) (Session, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("initializing auth client: %w", err)
	}

	token, err := client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Session{}, fmt.Errorf("verifying id token: %w", err)
	}

	name, _ := token.Claims["name"].(string)
	return Session{UserID: token.UID, Username: name}, nil
}
