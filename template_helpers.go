package portal

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TemplateUserKey is the view data key holding the signed in user.
var TemplateUserKey = "current_user"

// TemplateHelpers returns the helper functions merged into every portal
// view. Helpers take any so templates can pass a missing user.
//
// In templates:
//
//	{% if is_authenticated(current_user) %}
//	{{ initials(current_user) }}
//	{{ account_label(current_user) }}
func TemplateHelpers() map[string]any {
	return map[string]any{
		"is_authenticated": isAuthenticated,
		"initials":         initials,
		"account_label":    accountLabel,
		"account_types": map[string]string{
			"individual": string(AccountIndividual),
			"business":   string(AccountBusiness),
		},
	}
}

// TemplateHelpersWithUser returns TemplateHelpers with user set as
// current_user.
func TemplateHelpersWithUser(user *User) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateUserKey] = user
	return helpers
}

func templateUser(v any) *User {
	switch u := v.(type) {
	case *User:
		return u
	case User:
		return &u
	default:
		return nil
	}
}

func isAuthenticated(v any) bool {
	u := templateUser(v)
	return u != nil && u.ID != ""
}

// initials returns up to two upper case letters from the user name, falling
// back to the email.
func initials(v any) string {
	u := templateUser(v)
	if u == nil {
		return ""
	}
	source := strings.TrimSpace(u.Name)
	if source == "" {
		source, _, _ = strings.Cut(u.Email, "@")
	}

	var out []rune
	for _, word := range strings.Fields(source) {
		r, _ := utf8.DecodeRuneInString(word)
		if r == utf8.RuneError || !unicode.IsLetter(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}

func accountLabel(v any) string {
	u := templateUser(v)
	if u == nil {
		return ""
	}
	switch u.AccountType {
	case AccountBusiness:
		return "Business account"
	case AccountIndividual:
		return "Personal account"
	default:
		return ""
	}
}
