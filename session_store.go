package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds every call made to the identity service.
const DefaultRequestTimeout = 15 * time.Second

// Operation names the session operation currently in flight.
type Operation string

const (
	OperationNone     Operation = ""
	OperationRestore  Operation = "restore"
	OperationLogin    Operation = "login"
	OperationRegister Operation = "register"
)

// State is the observable session state.
type State struct {
	User      *User     `json:"user,omitempty"`
	IsLoading bool      `json:"is_loading"`
	Operation Operation `json:"operation,omitempty"`
	Restored  bool      `json:"restored"`
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.User != nil
}

// SessionOption configures a SessionStore.
type SessionOption func(*SessionStore)

// WithSessionLogger overrides the store logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *SessionStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionActivitySink sets the sink that receives session events.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(s *SessionStore) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithRequestTimeout bounds each identity service call.
func WithRequestTimeout(d time.Duration) SessionOption {
	return func(s *SessionStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSessionClock injects a custom clock (useful for tests).
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(s *SessionStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

type observer struct {
	id int
	fn func(State)
}

// SessionStore owns the current user and mediates every authentication
// operation against the identity service. Only one operation runs at a time.
type SessionStore struct {
	api          IdentityAPI
	storage      TokenStorage
	logger       Logger
	activitySink ActivitySink
	timeout      time.Duration
	now          func() time.Time

	mu             sync.Mutex
	state          State
	inFlight       bool
	restoreStarted bool
	// generation moves on every Logout; operations started under an older
	// generation settle without touching the session
	generation     uint64
	observers      []observer
	nextObserverID int
}

// NewSessionStore returns a store waiting for its first Restore: it reports
// IsLoading with a pending restore until then.
func NewSessionStore(api IdentityAPI, storage TokenStorage, opts ...SessionOption) *SessionStore {
	s := &SessionStore{
		api:          api,
		storage:      storage,
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		timeout:      DefaultRequestTimeout,
		now:          time.Now,
		state: State{
			IsLoading: true,
			Operation: OperationRestore,
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// User returns the signed in user or nil.
func (s *SessionStore) User() *User {
	return s.Snapshot().User
}

// IsLoading reports whether an operation has not settled yet.
func (s *SessionStore) IsLoading() bool {
	return s.Snapshot().IsLoading
}

// Subscribe registers fn to be called after every state transition. Observers
// run synchronously in subscription order, outside the store lock.
func (s *SessionStore) Subscribe(fn func(State)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextObserverID++
	id := s.nextObserverID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, o := range s.observers {
				if o.id == id {
					s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Restore validates a persisted token once per store. Any failure leaves the
// session anonymous and discards the token. Later calls are no-ops.
func (s *SessionStore) Restore(ctx context.Context) {
	ctx = ensureContext(ctx)

	s.mu.Lock()
	if s.restoreStarted || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.restoreStarted = true
	s.inFlight = true
	s.state.IsLoading = true
	s.state.Operation = OperationRestore
	gen := s.generation
	s.mu.Unlock()

	var user *User
	var err error

	token, ok := s.storage.Get()
	if ok && token != "" {
		user, err = s.validate(ctx, token)
		if err != nil {
			s.logger.Debug("session restore failed", "kind", KindOf(err), "error", err)
		}
	}

	if stale, _ := s.settleOperation(gen, user, "", err != nil); stale {
		s.logger.Debug("session restore discarded after logout")
		return
	}

	event := SessionEvent{EventType: SessionEventRestoreSuccess}
	if err != nil {
		event.EventType = SessionEventRestoreFailure
		event.Failure = KindOf(err)
	}
	if user != nil {
		event.UserID = user.ID
	}
	s.record(ctx, event)
}

// Login authenticates identifier and secret. On success the token is
// persisted and the user is set, on failure the session is left anonymous.
func (s *SessionStore) Login(ctx context.Context, identifier, secret string) error {
	ctx = ensureContext(ctx)
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return ErrMissingCredentials
	}

	return s.run(ctx, OperationLogin, identifier, func(ctx context.Context) (*AuthResult, error) {
		return s.api.Authenticate(ctx, identifier, secret)
	})
}

// Register creates an account and signs it in.
func (s *SessionStore) Register(ctx context.Context, profile Profile) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(profile.Name) == "" || strings.TrimSpace(profile.Email) == "" || profile.Password == "" {
		return ErrMissingProfileFields
	}

	return s.run(ctx, OperationRegister, profile.Email, func(ctx context.Context) (*AuthResult, error) {
		return s.api.CreateAccount(ctx, profile)
	})
}

// Logout clears the user and the persisted token. It never calls the
// identity service. An operation still in flight is abandoned: its result is
// dropped when it settles.
func (s *SessionStore) Logout() {
	s.mu.Lock()
	_, hadToken := s.storage.Get()
	prev := s.state.User
	wasLoading := s.state.IsLoading

	s.generation++
	s.restoreStarted = true
	s.state.User = nil
	s.state.IsLoading = false
	s.state.Operation = OperationNone
	s.state.Restored = true
	if hadToken {
		s.clearTokenLocked()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	changed := prev != nil || wasLoading
	if !changed && !hadToken {
		return
	}

	if changed {
		s.notify(snap)
	}

	event := SessionEvent{EventType: SessionEventLogout}
	if prev != nil {
		event.UserID = prev.ID
	}
	s.record(context.Background(), event)
}

func (s *SessionStore) run(ctx context.Context, op Operation, identifier string, call func(context.Context) (*AuthResult, error)) error {
	gen, ok := s.begin(op)
	if !ok {
		return ErrOperationInFlight
	}

	res, err := s.authCall(ctx, call)
	if err == nil {
		err = checkAuthResult(res)
	}

	var user *User
	var token string
	if err == nil {
		u := *res.User
		user, token = &u, res.Token
	}

	successEvent, failureEvent := SessionEventLoginSuccess, SessionEventLoginFailure
	if op == OperationRegister {
		successEvent, failureEvent = SessionEventRegisterSuccess, SessionEventRegisterFailure
	}

	stale, persistErr := s.settleOperation(gen, user, token, err != nil)
	switch {
	case stale:
		s.logger.Debug("session operation discarded after logout", "operation", op)
		err = WrapFailure(fmt.Errorf("%s overtaken by logout", op), ErrOperationCanceled)
	case err == nil:
		err = persistErr
	}

	if err != nil {
		err = classifyFailure(err)
		s.logger.Debug("session operation failed", "operation", op, "kind", KindOf(err), "error", err)
		s.record(ctx, SessionEvent{
			EventType:  failureEvent,
			Identifier: identifier,
			Failure:    KindOf(err),
		})
		return err
	}

	s.record(ctx, SessionEvent{
		EventType:  successEvent,
		UserID:     user.ID,
		Identifier: identifier,
	})
	return nil
}

// begin flips the store into loading for op and returns the generation the
// operation belongs to. It fails when another operation has not settled yet.
func (s *SessionStore) begin(op Operation) (uint64, bool) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return 0, false
	}
	s.inFlight = true
	// an explicit login or registration supersedes a pending restore
	s.restoreStarted = true
	s.state.IsLoading = true
	s.state.Operation = op
	gen := s.generation
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return gen, true
}

// settleOperation ends the operation started under gen. A non empty token is
// persisted for user, a failed operation discards the stored token. When a
// Logout happened since gen the outcome is dropped and stale is true.
func (s *SessionStore) settleOperation(gen uint64, user *User, token string, failed bool) (stale bool, err error) {
	s.mu.Lock()
	if s.generation != gen {
		s.inFlight = false
		s.mu.Unlock()
		return true, nil
	}

	if user != nil && token != "" {
		if serr := s.storage.Set(token); serr != nil {
			err = WrapFailure(fmt.Errorf("persist token: %w", serr), ErrIdentityFailure)
			user, failed = nil, true
		}
	}
	if failed {
		s.clearTokenLocked()
	}

	s.inFlight = false
	s.state.User = user
	s.state.IsLoading = false
	s.state.Operation = OperationNone
	s.state.Restored = true
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return false, err
}

func (s *SessionStore) authCall(ctx context.Context, call func(context.Context) (*AuthResult, error)) (res *AuthResult, err error) {
	if s.api == nil {
		return nil, WrapFailure(fmt.Errorf("identity api not configured"), ErrIdentityFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = WrapFailure(fmt.Errorf("identity call panicked: %v", r), ErrIdentityFailure)
		}
	}()

	return call(ctx)
}

func (s *SessionStore) validate(ctx context.Context, token string) (user *User, err error) {
	if s.api == nil {
		return nil, WrapFailure(fmt.Errorf("identity api not configured"), ErrIdentityFailure)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			user = nil
			err = WrapFailure(fmt.Errorf("token validation panicked: %v", r), ErrIdentityFailure)
		}
	}()

	user, err = s.api.ValidateToken(ctx, token)
	if err != nil {
		return nil, classifyFailure(err)
	}
	if user == nil {
		return nil, WrapFailure(fmt.Errorf("validation returned no user"), ErrIdentityFailure)
	}
	u := *user
	return &u, nil
}

func checkAuthResult(res *AuthResult) error {
	switch {
	case res == nil:
		return WrapFailure(fmt.Errorf("empty authentication result"), ErrIdentityFailure)
	case res.Token == "":
		return WrapFailure(fmt.Errorf("authentication result without token"), ErrIdentityFailure)
	case res.User == nil:
		return WrapFailure(fmt.Errorf("authentication result without user"), ErrIdentityFailure)
	}
	return nil
}

// clearTokenLocked runs under s.mu so a settling operation and a Logout
// cannot interleave their storage writes.
func (s *SessionStore) clearTokenLocked() {
	if err := s.storage.Clear(); err != nil {
		s.logger.Warn("failed to clear session token", "error", err)
	}
}

func (s *SessionStore) snapshotLocked() State {
	snap := s.state
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	return snap
}

func (s *SessionStore) notify(snap State) {
	s.mu.Lock()
	observers := make([]observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, o := range observers {
		o.fn(snap)
	}
}

func (s *SessionStore) record(ctx context.Context, event SessionEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}
	if err := s.activitySink.Record(ctx, event); err != nil {
		s.logger.Warn("session activity sink failed", "event", event.EventType, "error", err)
	}
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
