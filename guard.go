package portal

// DecisionKind is the outcome of a guard evaluation.
type DecisionKind string

const (
	DecisionLoading  DecisionKind = "loading"
	DecisionRedirect DecisionKind = "redirect"
	DecisionRender   DecisionKind = "render"
)

// Decision tells the view layer what to do with a route. Location is set only
// for redirects.
type Decision struct {
	Kind     DecisionKind
	Location string
}

// Loading builds a loading decision
func Loading() Decision { return Decision{Kind: DecisionLoading} }

// Render builds a render decision
func Render() Decision { return Decision{Kind: DecisionRender} }

// Redirect builds a redirect decision to location
func Redirect(location string) Decision {
	return Decision{Kind: DecisionRedirect, Location: location}
}

func (d Decision) String() string {
	if d.Kind == DecisionRedirect {
		return string(d.Kind) + ":" + d.Location
	}
	return string(d.Kind)
}

// ProtectedDecision gates a route that needs a signed in user.
func ProtectedDecision(state State, loginPath string) Decision {
	switch {
	case state.IsLoading:
		return Loading()
	case state.User == nil:
		return Redirect(loginPath)
	default:
		return Render()
	}
}

// PublicDecision gates a route meant only for anonymous visitors, such as the
// login and registration pages.
func PublicDecision(state State, protectedRoot string) Decision {
	switch {
	case state.IsLoading:
		return Loading()
	case state.User != nil:
		return Redirect(protectedRoot)
	default:
		return Render()
	}
}

// StateSource is the part of SessionStore the guards depend on.
type StateSource interface {
	Snapshot() State
	Subscribe(fn func(State)) (unsubscribe func())
}

type guard struct {
	source StateSource
	target string
	decide func(State, string) Decision
}

func (g guard) Evaluate() Decision {
	return g.decide(g.source.Snapshot(), g.target)
}

func (g guard) Watch(fn func(Decision)) (stop func()) {
	if fn == nil {
		return func() {}
	}
	return g.source.Subscribe(func(s State) {
		fn(g.decide(s, g.target))
	})
}

// RouteGuard protects routes that require authentication.
type RouteGuard struct {
	guard
}

// NewRouteGuard binds a guard to source, anonymous visitors go to loginPath.
func NewRouteGuard(source StateSource, loginPath string) *RouteGuard {
	return &RouteGuard{guard{source: source, target: loginPath, decide: ProtectedDecision}}
}

// Evaluate returns the decision for the current state.
func (g *RouteGuard) Evaluate() Decision { return g.guard.Evaluate() }

// Watch calls fn with a fresh decision after every session transition.
func (g *RouteGuard) Watch(fn func(Decision)) (stop func()) { return g.guard.Watch(fn) }

// PublicGuard keeps signed in users away from login and registration.
type PublicGuard struct {
	guard
}

// NewPublicGuard binds a guard to source, signed in users go to protectedRoot.
func NewPublicGuard(source StateSource, protectedRoot string) *PublicGuard {
	return &PublicGuard{guard{source: source, target: protectedRoot, decide: PublicDecision}}
}

// Evaluate returns the decision for the current state.
func (g *PublicGuard) Evaluate() Decision { return g.guard.Evaluate() }

// Watch calls fn with a fresh decision after every session transition.
func (g *PublicGuard) Watch(fn func(Decision)) (stop func()) { return g.guard.Watch(fn) }
