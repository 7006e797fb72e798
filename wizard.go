package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nyaruka/phonenumbers"
)

// MinPasswordLength is the minimum number of characters accepted by the
// credentials step.
const MinPasswordLength = 6

// DefaultMaxProfileImageBytes caps profile picture uploads.
const DefaultMaxProfileImageBytes int64 = 5 << 20

// DefaultPhoneRegion is used to parse phone numbers without a country prefix.
const DefaultPhoneRegion = "IN"

// AccountType is the kind of account being registered
type AccountType string

const (
	AccountIndividual AccountType = "individual"
	AccountBusiness   AccountType = "business"
)

// Valid reports whether t is a selectable account type.
func (t AccountType) Valid() bool {
	return t == AccountIndividual || t == AccountBusiness
}

// ParseAccountType accepts the canonical names plus the B2C/B2B aliases used
// by older forms. Anything else yields the empty (unselected) type.
func ParseAccountType(s string) AccountType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(AccountIndividual), "b2c":
		return AccountIndividual
	case string(AccountBusiness), "b2b":
		return AccountBusiness
	}
	return ""
}

// Step is a position in the registration wizard.
type Step int

const (
	StepAccountDetails Step = iota + 1
	StepCredentials
	StepProfilePicture
)

func (s Step) String() string {
	switch s {
	case StepAccountDetails:
		return "account_details"
	case StepCredentials:
		return "credentials"
	case StepProfilePicture:
		return "profile_picture"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the three wizard steps.
func (s Step) Valid() bool {
	return s >= StepAccountDetails && s <= StepProfilePicture
}

// Fields returns the form fields edited at s. The profile picture step has
// none.
func (s Step) Fields() []string {
	return append([]string(nil), stepFields[s]...)
}

// Form field names accepted by Wizard.SetField.
const (
	FieldFullName        = "full_name"
	FieldCompanyName     = "company_name"
	FieldDisplayName     = "display_name"
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldPhoneNumber     = "phone_number"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirm_password"
	FieldAccountType     = "account_type"
)

var stepFields = map[Step][]string{
	StepAccountDetails: {
		FieldAccountType, FieldFullName, FieldCompanyName, FieldDisplayName,
		FieldUsername, FieldEmail, FieldPhoneNumber,
	},
	StepCredentials: {FieldPassword, FieldConfirmPassword},
}

// Draft is the data accumulated across the wizard steps.
type Draft struct {
	AccountType     AccountType   `json:"account_type"`
	FullName        string        `json:"full_name"`
	CompanyName     string        `json:"company_name"`
	Username        string        `json:"username"`
	Email           string        `json:"email"`
	PhoneNumber     string        `json:"phone_number"`
	Password        string        `json:"password"`
	ConfirmPassword string        `json:"confirm_password"`
	ProfileImage    *ProfileImage `json:"profile_image,omitempty"`
}

// DisplayName returns the name field that belongs to the selected account
// type.
func (d Draft) DisplayName() string {
	if d.AccountType == AccountBusiness {
		return d.CompanyName
	}
	return d.FullName
}

func (d Draft) displayNameField() string {
	if d.AccountType == AccountBusiness {
		return FieldCompanyName
	}
	return FieldFullName
}

// Profile builds the account creation payload. The phone number is
// normalized to E.164 when it parses in region, otherwise it is sent as typed.
func (d Draft) Profile(region string) Profile {
	p := Profile{
		AccountType: d.AccountType,
		Name:        d.DisplayName(),
		Username:    d.Username,
		Email:       d.Email,
		Phone:       NormalizePhone(d.PhoneNumber, region),
		Password:    d.Password,
	}
	if d.ProfileImage != nil {
		p.ProfileImage = d.ProfileImage.Data
		p.ProfileImageType = d.ProfileImage.ContentType
	}
	return p
}

// NormalizePhone formats raw as E.164 when it is a valid number.
func NormalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(raw, strings.ToUpper(region))
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// Registrar creates an account and establishes the session for it.
// *SessionStore satisfies it.
type Registrar interface {
	Register(ctx context.Context, profile Profile) error
}

// StepError is the step local error shown above the wizard form.
type StepError struct {
	Step    Step              `json:"step"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	cause   error
}

func (e *StepError) Error() string {
	return e.Message
}

func (e *StepError) Unwrap() error {
	return e.cause
}

// WizardOption configures a Wizard
type WizardOption func(*Wizard)

// WithMaxImageBytes overrides the profile picture size limit.
func WithMaxImageBytes(n int64) WizardOption {
	return func(w *Wizard) {
		if n > 0 {
			w.maxImageBytes = n
		}
	}
}

// WithPhoneRegion sets the default region used to normalize phone numbers.
func WithPhoneRegion(region string) WizardOption {
	return func(w *Wizard) {
		if region != "" {
			w.phoneRegion = region
		}
	}
}

// WithWizardLogger sets the wizard logger.
func WithWizardLogger(logger Logger) WizardOption {
	return func(w *Wizard) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Wizard drives the three step registration flow. It is safe for concurrent
// use, the registrar call runs outside the lock.
type Wizard struct {
	mu            sync.Mutex
	registrar     Registrar
	step          Step
	draft         Draft
	err           *StepError
	completed     bool
	submitting    bool
	maxImageBytes int64
	phoneRegion   string
	logger        Logger
}

// NewWizard returns a wizard at the account details step with the individual
// account type selected.
func NewWizard(registrar Registrar, opts ...WizardOption) *Wizard {
	w := &Wizard{
		registrar:     registrar,
		step:          StepAccountDetails,
		draft:         Draft{AccountType: AccountIndividual},
		maxImageBytes: DefaultMaxProfileImageBytes,
		phoneRegion:   DefaultPhoneRegion,
		logger:        NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the accumulated data.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Error returns the step local error, nil when none is shown.
func (w *Wizard) Error() *StepError {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// MaxImageBytes returns the profile picture size limit.
func (w *Wizard) MaxImageBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxImageBytes
}

// Completed reports whether the account was created.
func (w *Wizard) Completed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed
}

// SetAccountType selects the account type. Unknown values deselect it, which
// the account details gate reports.
func (w *Wizard) SetAccountType(t AccountType) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !t.Valid() {
		t = ""
	}
	w.draft.AccountType = t
}

// SetField updates one form field by name.
func (w *Wizard) SetField(name, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.setFieldLocked(name, value)
}

// ApplyFields sets the values that belong to the current step and returns
// the names it ignored. Fields of other steps were validated by their own
// gate and stay untouched. The account type goes first since display_name
// resolves against it.
func (w *Wizard) ApplyFields(values map[string]string) (ignored []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed || w.submitting {
		for name := range values {
			ignored = append(ignored, name)
		}
		return ignored
	}

	allowed := map[string]bool{}
	for _, name := range stepFields[w.step] {
		allowed[name] = true
	}

	if t, ok := values[FieldAccountType]; ok && allowed[FieldAccountType] {
		_ = w.setFieldLocked(FieldAccountType, t)
	}
	for name, value := range values {
		switch {
		case name == FieldAccountType && allowed[name]:
		case allowed[name]:
			_ = w.setFieldLocked(name, value)
		default:
			ignored = append(ignored, name)
		}
	}
	return ignored
}

func (w *Wizard) setFieldLocked(name, value string) error {
	d := &w.draft
	switch name {
	case FieldAccountType:
		d.AccountType = ParseAccountType(value)
	case FieldFullName:
		d.FullName = value
	case FieldCompanyName:
		d.CompanyName = value
	case FieldDisplayName:
		if d.AccountType == AccountBusiness {
			d.CompanyName = value
		} else {
			d.FullName = value
		}
	case FieldUsername:
		d.Username = value
	case FieldEmail:
		d.Email = value
	case FieldPhoneNumber:
		d.PhoneNumber = value
	case FieldPassword:
		d.Password = value
	case FieldConfirmPassword:
		d.ConfirmPassword = value
	default:
		return WrapFailure(fmt.Errorf("field %q", name), ErrUnknownField)
	}
	return nil
}

// Next validates the current step and advances when it passes. A failing
// gate sets the step error and returns it.
func (w *Wizard) Next() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed {
		return ErrWizardCompleted
	}

	var stepErr *StepError
	switch w.step {
	case StepAccountDetails:
		stepErr = validateAccountDetails(w.draft)
	case StepCredentials:
		stepErr = validateCredentials(w.draft)
	default:
		return ErrNoNextStep
	}

	if stepErr != nil {
		w.err = stepErr
		return stepErr
	}

	w.err = nil
	w.step++
	return nil
}

// Back moves to the previous step without validation. It reports false at
// the first step.
func (w *Wizard) Back() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed || w.submitting || w.step <= StepAccountDetails {
		return false
	}
	w.step--
	w.err = nil
	return true
}

// AttachImage validates data as an image and keeps it with its preview.
func (w *Wizard) AttachImage(data []byte) error {
	w.mu.Lock()
	limit := w.maxImageBytes
	w.mu.Unlock()

	img, err := NewProfileImage(data, limit)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		msg := MsgInvalidProfileImage
		if isImageTooLarge(err) {
			msg = MsgImageTooLarge
		}
		w.err = &StepError{Step: w.step, Message: msg, Fields: map[string]string{"profile_image": msg}, cause: err}
		return err
	}
	w.draft.ProfileImage = img
	w.err = nil
	return nil
}

// RemoveImage drops the selected picture and its preview.
func (w *Wizard) RemoveImage() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.ProfileImage = nil
}

// Submit creates the account with the accumulated data ("Finish Setup").
func (w *Wizard) Submit(ctx context.Context) error {
	return w.finish(ctx, "submit")
}

// Skip creates the account without asking for more input ("Skip For Now").
// It sends the same payload as Submit.
func (w *Wizard) Skip(ctx context.Context) error {
	return w.finish(ctx, "skip")
}

func (w *Wizard) finish(ctx context.Context, action string) error {
	w.mu.Lock()
	switch {
	case w.completed:
		w.mu.Unlock()
		return ErrWizardCompleted
	case w.submitting:
		w.mu.Unlock()
		return ErrOperationInFlight
	case w.step != StepProfilePicture:
		w.mu.Unlock()
		return ErrNotAtFinalStep
	}
	w.submitting = true
	profile := w.draft.Profile(w.phoneRegion)
	registrar := w.registrar
	w.mu.Unlock()

	var err error
	if registrar == nil {
		err = WrapFailure(fmt.Errorf("no registrar configured"), ErrIdentityFailure)
	} else {
		err = registrar.Register(ctx, profile)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false

	if err != nil {
		w.logger.Debug("wizard registration failed", "action", action, "kind", KindOf(err), "error", err)
		w.err = &StepError{Step: StepProfilePicture, Message: MsgRegistrationFailed, cause: err}
		return w.err
	}

	w.logger.Debug("wizard registration completed", "action", action, "username", profile.Username)
	w.completed = true
	w.err = nil
	return nil
}

// WizardSnapshot is the persisted form of a wizard.
type WizardSnapshot struct {
	Step      Step       `json:"step"`
	Draft     Draft      `json:"draft"`
	Error     *StepError `json:"error,omitempty"`
	Completed bool       `json:"completed"`
}

// Snapshot captures the wizard so it can be restored on a later request.
func (w *Wizard) Snapshot() WizardSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := WizardSnapshot{
		Step:      w.step,
		Draft:     w.draft,
		Completed: w.completed,
	}
	if w.err != nil {
		e := *w.err
		e.cause = nil
		snap.Error = &e
	}
	return snap
}

// RestoreWizard rebuilds a wizard from a snapshot. An invalid step resets
// the wizard to the first step.
func RestoreWizard(snap WizardSnapshot, registrar Registrar, opts ...WizardOption) *Wizard {
	w := NewWizard(registrar, opts...)
	w.draft = snap.Draft
	w.completed = snap.Completed
	w.err = snap.Error
	if snap.Step.Valid() {
		w.step = snap.Step
	} else {
		w.err = nil
	}
	return w
}
