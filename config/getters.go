package config

import (
	"time"

	portal "github.com/goliatone/go-auth-portal"
)

func (c *Config) GetCookieName() string { return c.Session.CookieName }
func (c *Config) GetCookieDuration() time.Duration { return c.Session.CookieDuration }
func (c *Config) GetCookieSecure() bool { return c.Session.CookieSecure }
func (c *Config) GetRejectedRouteKey() string { return c.Session.RejectedRouteKey }
func (c *Config) GetLoginRoute() string { return c.Routes.Login }
func (c *Config) GetRegisterRoute() string { return c.Routes.Register }
func (c *Config) GetLogoutRoute() string { return c.Routes.Logout }
func (c *Config) GetProtectedRoot() string { return c.Routes.Home }
func (c *Config) GetRequestTimeout() time.Duration { return c.Session.RequestTimeout }
func (c *Config) GetDraftTTL() time.Duration { return c.Drafts.TTL }
func (c *Config) GetPhoneRegion() string { return c.Wizard.PhoneRegion }

var _ portal.Config = (*Config)(nil)
