package identity

//go:generate mockgen -source=identity.go -destination=../../usecase/generateqr/mocks/identity.go -package=mocks

import "context"

type User struct {
	AccountID   string
	DisplayName string
}

// Provider returns the signed-in user, or nil when there is no session.
type Provider interface {
	CurrentUser(ctx context.Context) (*User, error)
}
