package shared

// Core platform permissions.
const (
	PermUsersView = "user.view"
	PermUsersEdit = "user.edit"

	PermRolesView = "role.view"
	PermRolesEdit = "role.edit"

	PermPermissionsView = "permission.view"
	PermPermissionsEdit = "permission.edit"

	PermDepartmentsView = "dept.view"
	PermDepartmentsEdit = "dept.edit"
)

// Ticket workflow permissions.
const (
	PermTicketsView    = "ticket.view"
	PermTicketsViewAll = "ticket.view_all"
	PermTicketsCreate  = "ticket.create"
	PermTicketsAssign  = "ticket.assign"
	PermTicketsProcess = "ticket.process"
	PermTicketsClose   = "ticket.close"
	PermTicketsDelete  = "ticket.delete"
)

// Dashboard permissions.
const (
	PermDashboardView = "dashboard.view"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermPermissionsView,
		PermPermissionsEdit,
		PermDepartmentsView,
		PermDepartmentsEdit,
	}
}

// TicketScopes lists all permissions related to the ticket workflow.
func TicketScopes() []string {
	return []string{
		PermTicketsView,
		PermTicketsViewAll,
		PermTicketsCreate,
		PermTicketsAssign,
		PermTicketsProcess,
		PermTicketsClose,
		PermTicketsDelete,
	}
}
