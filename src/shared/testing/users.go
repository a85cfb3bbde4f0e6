package testing

import (
	"context"
	"fmt"

	"github.com/veedubyou/stemsplit/src/server/google_id"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
)

type User struct {
	ID    string
	Name  string
	Email string
}

var (
	// validated, and owner of the jobs a test submits
	PrimaryUser = User{
		ID:    "primary-user-id",
		Name:  "Primary User Name",
		Email: "primary@stemsplit.dev",
	}

	// validated, but owns none of the primary user's jobs
	OtherUser = User{
		ID:    "other-user-id",
		Name:  "Other User Name",
		Email: "other@stemsplit.dev",
	}

	// never validated
	GoogleUnauthorizedUser = User{
		ID:    "google-unauthorized-user-id",
		Name:  "Google Unauthorized User",
		Email: "rando@notstemsplit.dev",
	}
)

func TokenForUserID(userID string) string {
	return fmt.Sprintf("%s-token", userID)
}

var _ google_id.Validator = Validator{}

type Validator struct{}

func (t Validator) ValidateToken(ctx context.Context, requestToken string) (google_id.User, error) {
	validatedUsers := []User{PrimaryUser, OtherUser}

	for _, validatedUser := range validatedUsers {
		if requestToken == TokenForUserID(validatedUser.ID) {
			return google_id.User{
				UserID: validatedUser.ID,
				Name:   validatedUser.Name,
				Email:  validatedUser.Email,
			}, nil
		}
	}

	return google_id.User{}, mark.Message(google_id.NotValidatedMark, "User is not validated")
}
