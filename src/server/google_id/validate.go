package google_id

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/errors/domains"
	"github.com/cockroachdb/errors/markers"
	"github.com/veedubyou/stemsplit/src/shared/lib/errors/mark"
	"google.golang.org/api/idtoken"
)

var (
	NotValidatedMark    = domains.New("token_not_validated")
	MalformedClaimsMark = domains.New("malformed_claims")
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 . Validator
type Validator interface {
	ValidateToken(ctx context.Context, requestToken string) (User, error)
}

// User is the identity behind a verified token. UserID is opaque and is
// what jobs are owned by.
type User struct {
	UserID string
	Name   string
	Email  string
}

var _ Validator = GoogleValidator{}

type GoogleValidator struct {
	ClientID string
}

func (g GoogleValidator) ValidateToken(ctx context.Context, requestToken string) (User, error) {
	validationResult, err := idtoken.Validate(ctx, requestToken, g.ClientID)
	if err != nil {
		return User{}, mark.Wrap(err, NotValidatedMark, "Token could not be validated")
	}

	return userFromClaims(validationResult.Claims)
}

func userFromClaims(claims map[string]any) (User, error) {
	sub, err := getStringField(claims, "sub")
	if err != nil {
		return User{}, mark.Wrap(err, MalformedClaimsMark, "sub field on claims is malformed")
	}

	if sub == "" {
		return User{}, mark.Message(MalformedClaimsMark, "sub field on claims is empty")
	}

	name, err := getStringField(claims, "name")
	if err != nil && !markers.Is(err, keyNotFound) {
		return User{}, mark.Wrap(err, MalformedClaimsMark, "name field on claims is malformed")
	}

	email, err := getStringField(claims, "email")
	if err != nil && !markers.Is(err, keyNotFound) {
		return User{}, mark.Wrap(err, MalformedClaimsMark, "email field on claims is malformed")
	}

	return User{
		UserID: sub,
		Name:   name,
		Email:  email,
	}, nil
}

var (
	keyNotFound    = domains.New("The specified key couldn't be found in the claims")
	valueNotString = domains.New("Unexpected: the retrieved value is not string type")
)

func getStringField(claims map[string]any, key string) (string, error) {
	value, ok := claims[key]
	if !ok {
		return "", errors.Wrap(keyNotFound, "The key "+key+" couldn't be found")
	}

	valueStr, ok := value.(string)
	if !ok {
		return "", errors.Wrap(valueNotString, "The key "+key+" has a non string value")
	}

	return valueStr, nil
}
