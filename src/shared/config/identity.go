package config

// Identity selects how bearer tokens are verified.
type Identity interface {
	IdentityConfig()
}

var _ Identity = GoogleIdentity{}

type GoogleIdentity struct {
	ClientID string
}

func (g GoogleIdentity) IdentityConfig() {}

var _ Identity = FirebaseIdentity{}

type FirebaseIdentity struct {
	ProjectID string
	JWKSURL   string
}

func (f FirebaseIdentity) IdentityConfig() {}
