package google_id

import (
	"context"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/veedubyou/stemsplit/src/shared/lib/cerr"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
)

const firebaseIssuerPrefix = "https://securetoken.google.com/"

var _ Validator = FirebaseValidator{}

// FirebaseValidator verifies Firebase ID tokens against Google's published
// signing keys.
type FirebaseValidator struct {
	projectID string
	keyfunc   jwt.Keyfunc
}

// NewFirebaseValidator fetches the signing keys from jwksURL and keeps them
// refreshed in the background until ctx is done.
func NewFirebaseValidator(ctx context.Context, projectID string, jwksURL string) (FirebaseValidator, error) {
	keys, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return FirebaseValidator{}, cerr.Field("jwks_url", jwksURL).Wrap(err).Error("Failed to load signing keys")
	}

	return NewFirebaseValidatorWithKeyfunc(projectID, keys.Keyfunc), nil
}

func NewFirebaseValidatorWithKeyfunc(projectID string, keys jwt.Keyfunc) FirebaseValidator {
	return FirebaseValidator{
		projectID: projectID,
		keyfunc:   keys,
	}
}

func (f FirebaseValidator) ValidateToken(_ context.Context, requestToken string) (User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(requestToken, claims, f.keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(f.projectID),
		jwt.WithIssuer(firebaseIssuerPrefix+f.projectID),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return User{}, mark.Wrap(err, NotValidatedMark, "Firebase token could not be validated")
	}

	return userFromClaims(claims)
}
