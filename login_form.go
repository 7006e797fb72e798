package portal

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// LoginRequest is the login form payload.
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate checks that both fields are present.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, validation.By(notBlank)),
		validation.Field(&r.Password, validation.Required),
	)
}

func notBlank(value interface{}) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return errors.New("cannot be blank")
	}
	return nil
}

// LoginFailureMessage maps any login error to the message shown on the form.
// Only missing input and busy stores get their own wording.
func LoginFailureMessage(err error) string {
	switch KindOf(err) {
	case FailureNone:
		if err == nil {
			return ""
		}
		return MsgInvalidLogin
	case FailureInvalidInput:
		return MsgFillAllFields
	case FailureBusy:
		return MsgOperationInProgress
	default:
		return MsgInvalidLogin
	}
}
