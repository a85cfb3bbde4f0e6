package userusecase

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/markers"
	"github.com/veedubyou/stemsplit/src/server/google_id"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
	"github.com/veedubyou/stemsplit/src/server/internal/errors/auth"
)

const (
	bearerPrefix = "Bearer "
)

type Usecase struct {
	validator google_id.Validator
}

func NewUsecase(validator google_id.Validator) Usecase {
	return Usecase{
		validator: validator,
	}
}

// Authenticate resolves the caller behind a bearer Authorization header.
func (u Usecase) Authenticate(ctx context.Context, authHeader string) (google_id.User, *api.Error) {
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return google_id.User{}, api.CommitError(
			errors.New("Auth header doesn't have the bearer prefix"),
			auth.BadAuthorizationHeaderCode,
			"Authorization header has unexpected shape")
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	user, err := u.validator.ValidateToken(ctx, token)
	if err != nil {
		err = errors.Wrap(err, "Failed to validate ID token")
		switch {
		case markers.Is(err, google_id.NotValidatedMark):
			return google_id.User{}, api.CommitError(err,
				auth.FailedVerificationCode,
				"Your login doesn't seem to be valid. Please try again")

		case markers.Is(err, google_id.MalformedClaimsMark):
			fallthrough
		default:
			return google_id.User{}, api.CommitError(err,
				api.DefaultErrorCode,
				"Unknown error: Couldn't verify your login status")
		}
	}

	return user, nil
}

func (u Usecase) VerifyOwner(user google_id.User, ownerID string) *api.Error {
	if user.UserID != ownerID {
		return api.CommitError(
			errors.New("Owner ID and user ID don't match"),
			auth.WrongOwnerCode,
			"The user requesting access doesn't match the owner")
	}

	return nil
}
