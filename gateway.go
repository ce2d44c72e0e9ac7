package authsync

import "context"

// Gateway is the call layer to the marketplace auth API. Implementations
// must carry the session cookie on every call and return errors classified
// by Classify.
type Gateway interface {
	Login(ctx context.Context, creds Credentials, role Role) (Envelope, error)
	RegisterUser(ctx context.Context, payload UserRegistration) (Envelope, error)
	RegisterPartner(ctx context.Context, payload PartnerRegistration) (Envelope, error)
	// Logout ends the session of role, an empty role uses the generic endpoint.
	Logout(ctx context.Context, role Role) error
	WhoAmI(ctx context.Context) (Envelope, error)
}

// HintStore keeps client side context that outlives a page, like the
// remembered partner email.
type HintStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HintPartnerEmail is the key of the remembered partner email.
const HintPartnerEmail = "partnerEmail"
