package auth

import (
	"context"

	"Quill/internal/appwrite"
)

// AccountAPI is the slice of the remote client the auth store depends on.
// appwrite.Client satisfies it; tests substitute fakes.
type AccountAPI interface {
	CreateAccount(ctx context.Context, email, password, name string) (*appwrite.Account, error)
	CreateSession(ctx context.Context, email, password string) (*appwrite.Session, error)
	DestroySession(ctx context.Context, scope string) error
	CurrentUser(ctx context.Context) (*appwrite.Account, error)
}
