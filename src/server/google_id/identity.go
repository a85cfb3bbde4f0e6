package google_id

import (
	"context"
	"fmt"

	"github.com/veedubyou/stemsplit/src/shared/config"
)

func NewValidator(ctx context.Context, identity config.Identity) (Validator, error) {
	switch identity := identity.(type) {
	case config.GoogleIdentity:
		return GoogleValidator{ClientID: identity.ClientID}, nil
	case config.FirebaseIdentity:
		return NewFirebaseValidator(ctx, identity.ProjectID, identity.JWKSURL)
	default:
		panic(fmt.Sprintf("Unexpected identity config %T", identity))
	}
}
