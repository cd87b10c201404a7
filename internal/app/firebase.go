package app

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"ridecoord/internal/config"
	"ridecoord/internal/middleware"
)

// firebaseVerifier verifies caller ID tokens with the Firebase Admin SDK.
type firebaseVerifier struct {
	client *auth.Client
}

// NewTokenVerifier creates a Firebase-backed token verifier. Without a
// credentials file, application default credentials are used.
func NewTokenVerifier(ctx context.Context, cfg config.FirebaseConfig) (middleware.TokenVerifier, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := fbApp.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	return token.UID, nil
}
