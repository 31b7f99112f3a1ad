package permission

import "strings"

// Role names with built-in defaults.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
	RoleUser  = "user"
)

// roleAliases maps historical role names onto their canonical role.
var roleAliases = map[string]string{
	"analyst":       RoleAgent,
	"administrator": RoleAdmin,
}

// Capability keys.
const (
	TicketsView    = "tickets.view"
	TicketsCreate  = "tickets.create"
	TicketsEditOwn = "tickets.edit_own"
	TicketsEditAll = "tickets.edit_all"
	TicketsDelete  = "tickets.delete"
	TicketsAssign  = "tickets.assign"
	TicketsClose   = "tickets.close"

	KBView   = "kb.view"
	KBCreate = "kb.create"
	KBEdit   = "kb.edit"
	KBDelete = "kb.delete"

	TimesheetsView    = "timesheets.view"
	TimesheetsViewAll = "timesheets.view_all"
	TimesheetsCreate  = "timesheets.create"
	TimesheetsEditOwn = "timesheets.edit_own"
	TimesheetsApprove = "timesheets.approve"

	UsersView   = "users.view"
	UsersManage = "users.manage"

	SettingsManage = "settings.manage"
	ReportsView    = "reports.view"
)

var catalog = []string{
	TicketsView, TicketsCreate, TicketsEditOwn, TicketsEditAll, TicketsDelete, TicketsAssign, TicketsClose,
	KBView, KBCreate, KBEdit, KBDelete,
	TimesheetsView, TimesheetsViewAll, TimesheetsCreate, TimesheetsEditOwn, TimesheetsApprove,
	UsersView, UsersManage,
	SettingsManage, ReportsView,
}

var defaults = map[string][]string{
	RoleAdmin: catalog,
	RoleAgent: {
		TicketsView, TicketsCreate, TicketsEditOwn, TicketsEditAll, TicketsAssign, TicketsClose,
		KBView, KBCreate, KBEdit,
		TimesheetsView, TimesheetsCreate, TimesheetsEditOwn,
		UsersView,
		ReportsView,
	},
	RoleUser: {
		TicketsView, TicketsCreate, TicketsEditOwn,
		KBView,
		TimesheetsView, TimesheetsCreate, TimesheetsEditOwn,
	},
}

// Catalog returns every capability key known to the built-in defaults.
func Catalog() []string {
	out := make([]string, len(catalog))
	copy(out, catalog)
	return out
}

// NormalizeRole lower-cases role and resolves aliases.
func NormalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if canonical, ok := roleAliases[role]; ok {
		return canonical
	}
	return role
}

// Defaults returns a fresh copy of the built-in map for role. Every catalog
// key is present, denied keys map to false. Unknown roles get the user map.
func Defaults(role string) Set {
	granted, ok := defaults[NormalizeRole(role)]
	if !ok {
		granted = defaults[RoleUser]
	}

	out := make(Set, len(catalog))
	for _, c := range catalog {
		out[c] = false
	}
	for _, c := range granted {
		out[c] = true
	}
	return out
}

// HasDefaults reports whether role has its own built-in map.
func HasDefaults(role string) bool {
	_, ok := defaults[NormalizeRole(role)]
	return ok
}
