package shared

// Core platform permissions. The full identifier is resource.action,
// case-sensitive.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRbacView = "rbac.view"
	PermRbacEdit = "rbac.edit"

	PermDataSourceView   = "datasource.view"
	PermDataSourceEdit   = "datasource.edit"
	PermDataSourceDelete = "datasource.delete"

	PermAuditView   = "audit.view"
	PermAuditExport = "audit.export"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRbacView,
		PermRbacEdit,
		PermDataSourceView,
		PermDataSourceEdit,
		PermDataSourceDelete,
		PermAuditView,
		PermAuditExport,
	}
}
