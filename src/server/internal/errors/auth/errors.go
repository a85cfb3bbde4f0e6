package auth

import (
	"github.com/veedubyou/stemsplit/src/server/internal/errors/api"
)

const (
	FailedVerificationCode     = api.ErrorCode("failed_verification")
	WrongOwnerCode             = api.ErrorCode("wrong_owner")
	BadAuthorizationHeaderCode = api.ErrorCode("bad_header")
)
