package idp

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

var (
	// ErrAccountExists is returned when the email or username is taken.
	ErrAccountExists = goerrors.New("an account with this email or username already exists", goerrors.CategoryConflict).
				WithTextCode("ACCOUNT_EXISTS").
				WithCode(goerrors.CodeConflict)

	ErrInvalidAccount = goerrors.New("invalid account details", goerrors.CategoryValidation).
				WithTextCode("INVALID_ACCOUNT").
				WithCode(http.StatusUnprocessableEntity)

	ErrNoEmptyPassword = goerrors.New("password must not be empty", goerrors.CategoryValidation).
				WithTextCode("EMPTY_PASSWORD").
				WithCode(goerrors.CodeBadRequest)

	ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
					WithTextCode("PASSWORD_MISMATCH").
					WithCode(goerrors.CodeUnauthorized)

	ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryAuth).
				WithTextCode("ACCOUNT_NOT_FOUND").
				WithCode(goerrors.CodeUnauthorized)

	ErrTokenExpired = goerrors.New("session token expired", goerrors.CategoryAuth).
			WithTextCode("TOKEN_EXPIRED").
			WithCode(goerrors.CodeUnauthorized)

	ErrTokenMalformed = goerrors.New("session token malformed", goerrors.CategoryAuth).
				WithTextCode("TOKEN_MALFORMED").
				WithCode(goerrors.CodeUnauthorized)
)

func wrapAccountExists(err error) *goerrors.Error {
	clone := ErrAccountExists.Clone()
	clone.Source = err
	return clone
}
