package repositories

import "context"

// Credential is a transport join credential issued for one call.
type Credential struct {
	AppID string
	Token string
}

// CredentialIssuer exchanges a user id and channel name for transport
// join credentials. Consumed once per call start.
type CredentialIssuer interface {
	Issue(ctx context.Context, userID uint, channel string) (Credential, error)
}
