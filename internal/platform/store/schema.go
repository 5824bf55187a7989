package store

// Migrations is the ordered schema for every Jadeed module. The SQL is kept to
// the subset SQLite and Postgres share.
var Migrations = []Migration{
	{
		ID:      "0001_accounts",
		Version: "0001",
		SQL: `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	password_hash TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	is_staff BOOLEAN NOT NULL DEFAULT FALSE,
	is_superuser BOOLEAN NOT NULL DEFAULT FALSE,
	date_joined TIMESTAMP NOT NULL,
	last_login TIMESTAMP NULL
);
CREATE TABLE api_tokens (
	token_key TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE revoked_tokens (
	jti TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	expires_at TIMESTAMP NOT NULL,
	revoked_at TIMESTAMP NOT NULL
);`,
	},
	{
		ID:      "0002_organizations",
		Version: "0002",
		SQL: `
CREATE TABLE organizations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	slug TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	parent_id TEXT NULL REFERENCES organizations(id),
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	address_line1 TEXT NOT NULL DEFAULT '',
	address_line2 TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	country TEXT NOT NULL DEFAULT '',
	tax_id TEXT NOT NULL DEFAULT '',
	registration_number TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE departments (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent_id TEXT NULL REFERENCES departments(id),
	head_id TEXT NULL REFERENCES users(id),
	budget_allocated BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (organization_id, slug)
);
CREATE TABLE teams (
	id TEXT PRIMARY KEY,
	department_id TEXT NOT NULL REFERENCES departments(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	lead_id TEXT NULL REFERENCES users(id),
	project_key TEXT NOT NULL DEFAULT '',
	budget BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (department_id, slug)
);
CREATE TABLE roles (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	role_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	can_manage_users BOOLEAN NOT NULL DEFAULT FALSE,
	can_manage_roles BOOLEAN NOT NULL DEFAULT FALSE,
	can_view_all_financial BOOLEAN NOT NULL DEFAULT FALSE,
	can_manage_financial BOOLEAN NOT NULL DEFAULT FALSE,
	can_approve_expenses BOOLEAN NOT NULL DEFAULT FALSE,
	can_manage_departments BOOLEAN NOT NULL DEFAULT FALSE,
	can_manage_teams BOOLEAN NOT NULL DEFAULT FALSE,
	can_view_reports BOOLEAN NOT NULL DEFAULT FALSE,
	can_export_data BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (organization_id, role_type)
);
CREATE TABLE members (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	department_id TEXT NULL REFERENCES departments(id),
	role_id TEXT NULL REFERENCES roles(id),
	employee_id TEXT NOT NULL DEFAULT '',
	job_title TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	salary BIGINT NOT NULL DEFAULT 0,
	date_joined TIMESTAMP NOT NULL,
	date_left TIMESTAMP NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, organization_id)
);
CREATE TABLE team_members (
	id TEXT PRIMARY KEY,
	member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
	team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
	is_lead BOOLEAN NOT NULL DEFAULT FALSE,
	joined_at TIMESTAMP NOT NULL,
	left_at TIMESTAMP NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	UNIQUE (member_id, team_id)
);`,
	},
	{
		ID:      "0003_accounting",
		Version: "0003",
		SQL: `
CREATE TABLE ledger_accounts (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	account_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	parent_id TEXT NULL REFERENCES ledger_accounts(id),
	balance BIGINT NOT NULL DEFAULT 0,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (organization_id, code)
);
CREATE TABLE expenses (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	member_id TEXT NOT NULL REFERENCES members(id),
	department_id TEXT NULL REFERENCES departments(id),
	team_id TEXT NULL REFERENCES teams(id),
	account_id TEXT NULL REFERENCES ledger_accounts(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL,
	amount BIGINT NOT NULL,
	currency TEXT NOT NULL DEFAULT 'USD',
	expense_date TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	approved_by TEXT NULL REFERENCES users(id),
	approved_at TIMESTAMP NULL,
	rejection_reason TEXT NOT NULL DEFAULT '',
	paid_at TIMESTAMP NULL,
	payment_method TEXT NOT NULL DEFAULT '',
	payment_reference TEXT NOT NULL DEFAULT '',
	receipt_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE invoices (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	invoice_number TEXT NOT NULL UNIQUE,
	invoice_type TEXT NOT NULL,
	client_name TEXT NOT NULL,
	client_email TEXT NOT NULL DEFAULT '',
	client_address TEXT NOT NULL DEFAULT '',
	subtotal BIGINT NOT NULL DEFAULT 0,
	tax_amount BIGINT NOT NULL DEFAULT 0,
	discount_amount BIGINT NOT NULL DEFAULT 0,
	total_amount BIGINT NOT NULL DEFAULT 0,
	currency TEXT NOT NULL DEFAULT 'USD',
	issue_date TIMESTAMP NOT NULL,
	due_date TIMESTAMP NOT NULL,
	paid_date TIMESTAMP NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	terms TEXT NOT NULL DEFAULT '',
	created_by TEXT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE invoice_line_items (
	id TEXT PRIMARY KEY,
	invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	description TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	unit_price BIGINT NOT NULL,
	amount BIGINT NOT NULL,
	account_id TEXT NULL REFERENCES ledger_accounts(id),
	line_order INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE payments (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	invoice_id TEXT NULL REFERENCES invoices(id),
	expense_id TEXT NULL REFERENCES expenses(id),
	amount BIGINT NOT NULL,
	payment_method TEXT NOT NULL,
	payment_date TIMESTAMP NOT NULL,
	reference_number TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	processed_by TEXT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE journal_entries (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	entry_number TEXT NOT NULL,
	entry_type TEXT NOT NULL,
	entry_date TIMESTAMP NOT NULL,
	description TEXT NOT NULL,
	invoice_id TEXT NULL REFERENCES invoices(id),
	expense_id TEXT NULL REFERENCES expenses(id),
	created_by TEXT NULL REFERENCES users(id),
	created_at TIMESTAMP NOT NULL,
	UNIQUE (organization_id, entry_number)
);
CREATE TABLE journal_entry_lines (
	id TEXT PRIMARY KEY,
	journal_entry_id TEXT NOT NULL REFERENCES journal_entries(id) ON DELETE CASCADE,
	account_id TEXT NOT NULL REFERENCES ledger_accounts(id),
	description TEXT NOT NULL DEFAULT '',
	debit BIGINT NOT NULL DEFAULT 0,
	credit BIGINT NOT NULL DEFAULT 0,
	department_id TEXT NULL REFERENCES departments(id),
	team_id TEXT NULL REFERENCES teams(id),
	line_order INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE budgets (
	id TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	department_id TEXT NULL REFERENCES departments(id),
	team_id TEXT NULL REFERENCES teams(id),
	name TEXT NOT NULL,
	period TEXT NOT NULL,
	start_date TIMESTAMP NOT NULL,
	end_date TIMESTAMP NOT NULL,
	total_budget BIGINT NOT NULL,
	spent_amount BIGINT NOT NULL DEFAULT 0,
	notes TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`,
	},
	{
		ID:      "0004_jira",
		Version: "0004",
		SQL: `
CREATE TABLE atlassian_connections (
	user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMP NULL,
	scope TEXT NOT NULL DEFAULT '',
	token_type TEXT NOT NULL DEFAULT 'Bearer',
	cloud_id TEXT NOT NULL DEFAULT '',
	cloud_name TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE jira_pending_auth (
	state TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	verifier TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`,
	},
	{
		ID:      "0005_github",
		Version: "0005",
		SQL: `
CREATE TABLE github_connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
	access_token TEXT NOT NULL,
	refresh_token TEXT NOT NULL DEFAULT '',
	token_type TEXT NOT NULL DEFAULT 'bearer',
	scope TEXT NOT NULL DEFAULT '',
	github_user_id BIGINT NOT NULL,
	username TEXT NOT NULL,
	avatar_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE github_repositories (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL REFERENCES github_connections(id) ON DELETE CASCADE,
	repo_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	full_name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	html_url TEXT NOT NULL DEFAULT '',
	clone_url TEXT NOT NULL DEFAULT '',
	ssh_url TEXT NOT NULL DEFAULT '',
	private BOOLEAN NOT NULL DEFAULT FALSE,
	fork BOOLEAN NOT NULL DEFAULT FALSE,
	language TEXT NOT NULL DEFAULT '',
	stars_count INTEGER NOT NULL DEFAULT 0,
	watchers_count INTEGER NOT NULL DEFAULT 0,
	forks_count INTEGER NOT NULL DEFAULT 0,
	open_issues_count INTEGER NOT NULL DEFAULT 0,
	default_branch TEXT NOT NULL DEFAULT 'main',
	repo_created_at TIMESTAMP NULL,
	repo_updated_at TIMESTAMP NULL,
	pushed_at TIMESTAMP NULL,
	last_synced TIMESTAMP NOT NULL,
	UNIQUE (connection_id, repo_id)
);
CREATE TABLE code_change_requests (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	repository_id TEXT NOT NULL REFERENCES github_repositories(id) ON DELETE CASCADE,
	workflow_step_id TEXT NULL,
	prompt TEXT NOT NULL,
	status TEXT NOT NULL,
	branch_name TEXT NOT NULL DEFAULT '',
	commit_sha TEXT NOT NULL DEFAULT '',
	logs TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	output TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NULL
);`,
	},
	{
		ID:      "0006_product_management",
		Version: "0006",
		SQL: `
CREATE TABLE pm_projects (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	github_repository_id TEXT NULL REFERENCES github_repositories(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE workflow_steps (
	id TEXT PRIMARY KEY,
	project_id TEXT NULL REFERENCES pm_projects(id) ON DELETE CASCADE,
	user_id TEXT NULL REFERENCES users(id) ON DELETE CASCADE,
	organization_id TEXT NULL REFERENCES organizations(id) ON DELETE CASCADE,
	step_type TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	reference_id TEXT NOT NULL UNIQUE,
	parent_id TEXT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	repository_id TEXT NULL REFERENCES github_repositories(id) ON DELETE SET NULL,
	details TEXT NOT NULL DEFAULT '{}',
	conversation_history TEXT NOT NULL DEFAULT '[]',
	readme_content TEXT NOT NULL DEFAULT '',
	readme_generated_at TIMESTAMP NULL,
	status TEXT NOT NULL DEFAULT 'backlog',
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE product_repositories (
	step_id TEXT NOT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	repository_id TEXT NOT NULL REFERENCES github_repositories(id) ON DELETE CASCADE,
	PRIMARY KEY (step_id, repository_id)
);
CREATE TABLE workflow_comments (
	id TEXT PRIMARY KEY,
	step_id TEXT NOT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE workflow_action_logs (
	id TEXT PRIMARY KEY,
	step_id TEXT NOT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	user_id TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
	action_type TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE workflow_documents (
	id TEXT PRIMARY KEY,
	step_id TEXT NOT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	document_type TEXT NOT NULL,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT 'ai',
	created_by TEXT NULL REFERENCES users(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE guided_steps (
	id TEXT PRIMARY KEY,
	parent_step_id TEXT NOT NULL REFERENCES workflow_steps(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	step_type TEXT NOT NULL,
	layer TEXT NOT NULL,
	step_order INTEGER NOT NULL,
	title TEXT NOT NULL,
	conversation_history TEXT NOT NULL DEFAULT '[]',
	document_content TEXT NOT NULL DEFAULT '',
	is_completed BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TIMESTAMP NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	UNIQUE (parent_step_id, step_type)
);
CREATE TABLE recent_items (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	item_type TEXT NOT NULL,
	item_id TEXT NOT NULL,
	title TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	viewed_at TIMESTAMP NOT NULL,
	UNIQUE (user_id, item_type, item_id)
);`,
	},
	{
		ID:      "0007_activity",
		Version: "0007",
		SQL: `
CREATE TABLE activity_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	source TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL DEFAULT '{}',
	occurred_at TIMESTAMP NOT NULL
);
CREATE INDEX idx_activity_events_subject ON activity_events (subject, occurred_at);`,
	},
}
