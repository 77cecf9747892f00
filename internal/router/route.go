// Package router maps URL hash fragments to application views.
//
// Fragments look like "#/name" or "#/name/param". Names outside the routing
// table resolve to the dashboard, parameters are sanitized per route, and
// protected views require a session.
package router

import (
	"net/url"
	"strings"

	"github.com/zenite-os/zenite/internal/campaign"
)

// Name identifies a view.
type Name string

const (
	NameDashboard Name = "dashboard"
	NameSheet     Name = "sheet"
	NameNetLink   Name = "netlink"
	NameLogin     Name = "login"
	// NameWizard is the character creation wizard. It is only reachable
	// through a hook redirect, never from a fragment.
	NameWizard Name = "wizard"
)

// MaxCharacterIDLength caps sheet route parameters.
const MaxCharacterIDLength = 64

// Route is a resolved view with its optional parameter.
type Route struct {
	Name  Name
	Param string
}

// Fragment renders the route as a hash fragment.
func (r Route) Fragment() string {
	if r.Param == "" {
		return "#/" + string(r.Name)
	}
	return "#/" + string(r.Name) + "/" + url.PathEscape(r.Param)
}

// Dashboard is the fallback route.
func Dashboard() Route {
	return Route{Name: NameDashboard}
}

// Entry describes one view of the routing table.
type Entry struct {
	// Protected views require a session.
	Protected bool
	// Internal views cannot be addressed by a fragment and never touch history.
	Internal bool
	// Param sanitizes the raw parameter; nil drops it.
	Param func(raw string) string
	// RequireParam sends parameterless visits to the dashboard.
	RequireParam bool
}

// Table is the fixed routing table.
type Table map[Name]Entry

// DefaultTable returns the application's routing table.
func DefaultTable() Table {
	return Table{
		NameDashboard: {Protected: true},
		NameSheet:     {Protected: true, Param: SanitizeCharacterID, RequireParam: true},
		NameNetLink:   {Protected: true, Param: sanitizeInviteParam},
		NameLogin:     {},
		NameWizard:    {Protected: true, Internal: true},
	}
}

// SanitizeName maps a raw route token to a table name. Unknown and internal
// names fall back to the dashboard.
func (t Table) SanitizeName(raw string) Name {
	name := Name(strings.ToLower(strings.TrimSpace(raw)))
	entry, ok := t[name]
	if !ok || entry.Internal {
		return NameDashboard
	}
	return name
}

// Parse maps a fragment to a sanitized route.
func (t Table) Parse(fragment string) Route {
	trimmed := strings.TrimSpace(fragment)
	trimmed = strings.TrimPrefix(trimmed, "#")
	trimmed = strings.Trim(trimmed, "/")
	if trimmed == "" {
		return Dashboard()
	}
	parts := strings.Split(trimmed, "/")
	name := t.SanitizeName(parts[0])
	entry := t[name]

	param := ""
	if len(parts) > 1 && entry.Param != nil {
		raw := parts[1]
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
		param = entry.Param(raw)
	}
	if entry.RequireParam && param == "" {
		return Dashboard()
	}
	return Route{Name: name, Param: param}
}

// SanitizeName maps a raw token using the default table.
func SanitizeName(raw string) Name {
	return DefaultTable().SanitizeName(raw)
}

// Parse maps a fragment using the default table.
func Parse(fragment string) Route {
	return DefaultTable().Parse(fragment)
}

// SanitizeInviteCode trims and upper-cases raw; it is valid when it holds 4
// to 8 ASCII letters or digits.
func SanitizeInviteCode(raw string) (string, bool) {
	return campaign.SanitizeInviteCode(raw)
}

// SanitizeCharacterID keeps ASCII letters, digits, '_' and '-', capped at
// MaxCharacterIDLength.
func SanitizeCharacterID(raw string) string {
	var b strings.Builder
	for i := 0; i < len(raw) && b.Len() < MaxCharacterIDLength; i++ {
		c := raw[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
			b.WriteByte(c)
		}
	}
	return b.String()
}

func sanitizeInviteParam(raw string) string {
	code, ok := SanitizeInviteCode(raw)
	if !ok {
		return ""
	}
	return code
}
