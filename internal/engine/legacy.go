package engine

// The two static tables below predate the relational permission store
// and are kept for backward compatibility. legacyRolePermissions is the
// original single-role table; dotNotationPermissions is the
// migration-era replacement that was maintained independently before
// both were frozen. Neither may be extended; new grants belong in the
// store.

var legacyRolePermissions = map[string][]string{
	"admin": {
		"users.view", "users.edit",
		"rbac.view", "rbac.edit",
		"datasource.view", "datasource.edit", "datasource.delete",
		"audit.view", "audit.export",
	},
	"data_steward": {
		"datasource.view", "datasource.edit",
		"audit.view",
	},
	"compliance_officer": {
		"datasource.view",
		"audit.view", "audit.export",
	},
	"editor": {
		"datasource.view", "datasource.edit",
	},
	"viewer": {
		"datasource.view",
	},
}

var dotNotationPermissions = map[string][]string{
	"admin": {
		"users.view", "users.edit",
		"rbac.view", "rbac.edit",
		"datasource.view", "datasource.edit", "datasource.delete",
		"audit.view", "audit.export",
	},
	"data_steward": {
		"datasource.view", "datasource.edit",
		"audit.view",
		"users.view",
	},
	"compliance_officer": {
		"datasource.view",
		"audit.view", "audit.export",
		"users.view",
	},
	"editor": {
		"datasource.view", "datasource.edit",
	},
	"viewer": {
		"datasource.view",
	},
}

func staticTableContains(table map[string][]string, role, permission string) bool {
	for _, p := range table[role] {
		if p == permission {
			return true
		}
	}
	return false
}
