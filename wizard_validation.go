package portal

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
)

var (
	ruleRequired = validation.Required.Error("is required")
	rulePassword = validation.RuneLength(MinPasswordLength, 0).Error(MsgPasswordTooShort)
)

func validateAccountDetails(d Draft) *StepError {
	if !d.AccountType.Valid() {
		return &StepError{
			Step:    StepAccountDetails,
			Message: MsgSelectAccountType,
			Fields:  map[string]string{FieldAccountType: MsgSelectAccountType},
		}
	}

	errs := validation.Errors{
		d.displayNameField(): validation.Validate(d.DisplayName(), ruleRequired),
		FieldUsername:        validation.Validate(d.Username, ruleRequired),
		FieldEmail:           validation.Validate(d.Email, ruleRequired),
		FieldPhoneNumber:     validation.Validate(d.PhoneNumber, ruleRequired),
	}.Filter()
	if errs == nil {
		return nil
	}

	return &StepError{
		Step:    StepAccountDetails,
		Message: MsgFillRequiredFields,
		Fields:  fieldMessages(errs),
		cause:   errs,
	}
}

// validateCredentials runs the password checks in order, the first failing
// check decides the message.
func validateCredentials(d Draft) *StepError {
	missing := validation.Errors{
		FieldPassword:        validation.Validate(d.Password, ruleRequired),
		FieldConfirmPassword: validation.Validate(d.ConfirmPassword, ruleRequired),
	}.Filter()
	if missing != nil {
		return &StepError{
			Step:    StepCredentials,
			Message: MsgFillBothPasswords,
			Fields:  fieldMessages(missing),
			cause:   missing,
		}
	}

	if err := validation.Validate(d.ConfirmPassword, validation.By(ValidateStringEquals(d.Password))); err != nil {
		return &StepError{
			Step:    StepCredentials,
			Message: MsgPasswordsDoNotMatch,
			Fields:  map[string]string{FieldConfirmPassword: MsgPasswordsDoNotMatch},
			cause:   err,
		}
	}

	if err := validation.Validate(d.Password, rulePassword); err != nil {
		return &StepError{
			Step:    StepCredentials,
			Message: MsgPasswordTooShort,
			Fields:  map[string]string{FieldPassword: MsgPasswordTooShort},
			cause:   err,
		}
	}

	return nil
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func fieldMessages(err error) map[string]string {
	out := map[string]string{}
	var errs validation.Errors
	if !errors.As(err, &errs) {
		return out
	}
	for k, e := range errs {
		if e != nil {
			out[k] = e.Error()
		}
	}
	return out
}
