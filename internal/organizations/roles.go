package organizations

// defaultRoles is the permission matrix applied to every new organization.
var defaultRoles = []struct {
	Type        RoleType
	Description string
	Permissions Permissions
}{
	{
		Type:        RoleAdmin,
		Description: "Full access to all features",
		Permissions: Permissions{
			ManageUsers: true, ManageRoles: true, ViewAllFinancial: true, ManageFinancial: true,
			ApproveExpenses: true, ManageDepartments: true, ManageTeams: true, ViewReports: true, ExportData: true,
		},
	},
	{
		Type:        RoleManager,
		Description: "Manage teams and approve expenses",
		Permissions: Permissions{ApproveExpenses: true, ManageTeams: true, ViewReports: true},
	},
	{
		Type:        RoleAccountant,
		Description: "Manage financial records",
		Permissions: Permissions{
			ViewAllFinancial: true, ManageFinancial: true, ApproveExpenses: true, ViewReports: true, ExportData: true,
		},
	},
	{
		Type:        RoleEmployee,
		Description: "Basic employee access",
	},
	{
		Type:        RoleViewer,
		Description: "Read-only access",
		Permissions: Permissions{ViewReports: true},
	},
}
