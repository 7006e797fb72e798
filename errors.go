package portal

import (
	"context"
	"errors"
	"net"

	goerrors "github.com/goliatone/go-errors"
)

// FailureKind tags why an authentication related operation failed. Views
// collapse most kinds into one message, the kind is kept for logs and tests.
type FailureKind string

const (
	FailureNone               FailureKind = ""
	FailureInvalidInput       FailureKind = "invalid_input"
	FailureBusy               FailureKind = "busy"
	FailureInvalidCredentials FailureKind = "invalid_credentials"
	FailureAccountRejected    FailureKind = "account_rejected"
	FailureNetwork            FailureKind = "network"
	FailureServer             FailureKind = "server"
	FailureCanceled           FailureKind = "canceled"
)

const (
	textCodeMissingCredentials   = "MISSING_CREDENTIALS"
	textCodeMissingProfileFields = "MISSING_PROFILE_FIELDS"
	textCodeOperationInFlight    = "OPERATION_IN_FLIGHT"
	textCodeOperationCanceled    = "OPERATION_CANCELED"
	textCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	textCodeAccountRejected      = "ACCOUNT_REJECTED"
	textCodeIdentityUnreachable  = "IDENTITY_UNREACHABLE"
	textCodeIdentityFailure      = "IDENTITY_FAILURE"
	textCodeNoNextStep           = "WIZARD_NO_NEXT_STEP"
	textCodeNotAtFinalStep       = "WIZARD_NOT_AT_FINAL_STEP"
	textCodeWizardCompleted      = "WIZARD_COMPLETED"
	textCodeInvalidImage         = "INVALID_PROFILE_IMAGE"
	textCodeDraftNotFound        = "DRAFT_NOT_FOUND"
	textCodeUnknownField         = "WIZARD_UNKNOWN_FIELD"
	textCodeSessionNotFound      = "SESSION_NOT_FOUND"
)

// User facing messages
const (
	MsgFillAllFields       = "Please fill in all fields"
	MsgInvalidLogin        = "Invalid username or password"
	MsgTooManyAttempts     = "Too many login attempts. Please wait and try again."
	MsgSelectAccountType   = "Please select an account type"
	MsgFillRequiredFields  = "Please fill in all required fields"
	MsgFillBothPasswords   = "Please fill in both password fields"
	MsgPasswordsDoNotMatch = "Passwords do not match"
	MsgPasswordTooShort    = "Password must be at least 6 characters long"
	MsgRegistrationFailed  = "Registration failed. Please try again."
	MsgInvalidProfileImage = "Please select a valid image file"
	MsgImageTooLarge       = "Profile picture must be 5MB or smaller"
	MsgOperationInProgress = "Please wait, a request is already in progress"
)

var (
	// ErrMissingCredentials is returned by Login when identifier or secret is empty.
	ErrMissingCredentials = goerrors.New("identifier and secret are required", goerrors.CategoryValidation).
				WithTextCode(textCodeMissingCredentials).
				WithCode(goerrors.CodeBadRequest)

	// ErrMissingProfileFields is returned by Register when name, email or password is empty.
	ErrMissingProfileFields = goerrors.New("name, email and password are required", goerrors.CategoryValidation).
				WithTextCode(textCodeMissingProfileFields).
				WithCode(goerrors.CodeBadRequest)

	// ErrOperationInFlight is returned when another operation has not settled yet.
	ErrOperationInFlight = goerrors.New("an authentication operation is already in progress", goerrors.CategoryConflict).
				WithTextCode(textCodeOperationInFlight).
				WithCode(goerrors.CodeConflict)

	// ErrOperationCanceled is returned by an operation a Logout overtook.
	ErrOperationCanceled = goerrors.New("operation canceled by logout", goerrors.CategoryConflict).
				WithTextCode(textCodeOperationCanceled).
				WithCode(goerrors.CodeConflict)

	// ErrInvalidCredentials means the identity service rejected the credentials or token.
	ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
				WithTextCode(textCodeInvalidCredentials).
				WithCode(goerrors.CodeUnauthorized)

	// ErrAccountRejected means the identity service refused to create the account.
	ErrAccountRejected = goerrors.New("account creation rejected", goerrors.CategoryConflict).
				WithTextCode(textCodeAccountRejected).
				WithCode(goerrors.CodeConflict)

	// ErrIdentityUnreachable covers transport failures and timeouts.
	ErrIdentityUnreachable = goerrors.New("identity service unreachable", goerrors.CategoryOperation).
				WithTextCode(textCodeIdentityUnreachable).
				WithCode(goerrors.CodeInternal)

	// ErrIdentityFailure covers server side failures and malformed responses.
	ErrIdentityFailure = goerrors.New("identity service failure", goerrors.CategoryInternal).
				WithTextCode(textCodeIdentityFailure).
				WithCode(goerrors.CodeInternal)

	ErrNoNextStep = goerrors.New("wizard is at its last step", goerrors.CategoryValidation).
			WithTextCode(textCodeNoNextStep).
			WithCode(goerrors.CodeBadRequest)

	ErrNotAtFinalStep = goerrors.New("wizard can only submit from the profile picture step", goerrors.CategoryValidation).
				WithTextCode(textCodeNotAtFinalStep).
				WithCode(goerrors.CodeBadRequest)

	ErrWizardCompleted = goerrors.New("wizard already completed", goerrors.CategoryConflict).
				WithTextCode(textCodeWizardCompleted).
				WithCode(goerrors.CodeConflict)

	ErrInvalidImage = goerrors.New("invalid profile image", goerrors.CategoryBadInput).
			WithTextCode(textCodeInvalidImage).
			WithCode(goerrors.CodeBadRequest)

	ErrUnknownField = goerrors.New("unknown registration field", goerrors.CategoryBadInput).
			WithTextCode(textCodeUnknownField).
			WithCode(goerrors.CodeBadRequest)

	// ErrSessionNotFound means the session middleware did not run for the request.
	ErrSessionNotFound = goerrors.New("session store not found in request", goerrors.CategoryInternal).
				WithTextCode(textCodeSessionNotFound).
				WithCode(goerrors.CodeInternal)

	ErrDraftNotFound = goerrors.New("registration draft not found", goerrors.CategoryNotFound).
				WithTextCode(textCodeDraftNotFound).
				WithCode(goerrors.CodeNotFound)
)

var kindsByTextCode = map[string]FailureKind{
	textCodeMissingCredentials:   FailureInvalidInput,
	textCodeMissingProfileFields: FailureInvalidInput,
	textCodeOperationInFlight:    FailureBusy,
	textCodeOperationCanceled:    FailureCanceled,
	textCodeInvalidCredentials:   FailureInvalidCredentials,
	textCodeAccountRejected:      FailureAccountRejected,
	textCodeIdentityUnreachable:  FailureNetwork,
	textCodeIdentityFailure:      FailureServer,
}

// KindOf returns the failure kind carried by err, or FailureNone when err is
// nil or does not come from the portal taxonomy.
func KindOf(err error) FailureKind {
	if err == nil {
		return FailureNone
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return FailureNone
	}

	return kindsByTextCode[richErr.TextCode]
}

// IsFailure reports whether err, or an error it wraps, was derived from base.
// Wrapped failures are clones, so they are matched by text code.
func IsFailure(err error, base *goerrors.Error) bool {
	if base == nil {
		return false
	}
	for ; err != nil; err = errors.Unwrap(err) {
		richErr, ok := err.(*goerrors.Error)
		if !ok {
			continue
		}
		if richErr == base || (base.TextCode != "" && richErr.TextCode == base.TextCode) {
			return true
		}
	}
	return false
}

// WrapFailure returns a copy of base with err as its source so KindOf
// reports the kind of base while the cause stays reachable.
func WrapFailure(err error, base *goerrors.Error) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = err
	return clone
}

// classifyFailure makes sure every error leaving the session store carries a
// failure kind: errors already tagged are kept, timeouts and transport errors
// become network failures and anything else is a server failure.
func classifyFailure(err error) error {
	if err == nil {
		return nil
	}

	if KindOf(err) != FailureNone {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return WrapFailure(err, ErrIdentityUnreachable)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return WrapFailure(err, ErrIdentityUnreachable)
	}

	return WrapFailure(err, ErrIdentityFailure)
}
