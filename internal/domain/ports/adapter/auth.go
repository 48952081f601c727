package adapter

import "context"

// Principal is a verified caller identity.
type Principal struct {
	ID      string
	Name    string
	Email   string
	Picture string
}

// CredentialVerifier maps a bearer credential to a principal. It fails with
// domain.ErrAuth on invalid or expired credentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}
