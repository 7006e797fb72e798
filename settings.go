package portal

import "time"

// Settings is a plain Config implementation. The config package builds the
// file backed one, Settings is handy for embedding and tests.
type Settings struct {
	CookieName       string
	CookieDuration   time.Duration
	CookieSecure     bool
	RejectedRouteKey string
	LoginRoute       string
	RegisterRoute    string
	LogoutRoute      string
	ProtectedRoot    string
	RequestTimeout   time.Duration
	DraftTTL         time.Duration
	PhoneRegion      string
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CookieName:       "portal_session",
		CookieDuration:   24 * time.Hour,
		CookieSecure:     false,
		RejectedRouteKey: "portal_rejected_route",
		LoginRoute:       "/login",
		RegisterRoute:    "/register",
		LogoutRoute:      "/logout",
		ProtectedRoot:    "/",
		RequestTimeout:   DefaultRequestTimeout,
		DraftTTL:         DefaultDraftTTL,
		PhoneRegion:      DefaultPhoneRegion,
	}
}

func (s Settings) GetCookieName() string { return s.CookieName }
func (s Settings) GetCookieDuration() time.Duration { return s.CookieDuration }
func (s Settings) GetCookieSecure() bool { return s.CookieSecure }
func (s Settings) GetRejectedRouteKey() string { return s.RejectedRouteKey }
func (s Settings) GetLoginRoute() string { return s.LoginRoute }
func (s Settings) GetRegisterRoute() string { return s.RegisterRoute }
func (s Settings) GetLogoutRoute() string { return s.LogoutRoute }
func (s Settings) GetProtectedRoot() string { return s.ProtectedRoot }
func (s Settings) GetRequestTimeout() time.Duration { return s.RequestTimeout }
func (s Settings) GetDraftTTL() time.Duration { return s.DraftTTL }
func (s Settings) GetPhoneRegion() string { return s.PhoneRegion }
