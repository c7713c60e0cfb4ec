package db

import (
	"context"
	"fmt"
)

// Queries implements Querier over a DBTX.
type Queries struct {
	db DBTX
}

// New creates a Queries bound to the given connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx DBTX) *Queries {
	return &Queries{db: tx}
}

// GetDB returns the underlying DBTX for raw query access.
func (q *Queries) GetDB() DBTX {
	return q.db
}

const getOrganization = `
SELECT id, name FROM organizations WHERE id = ?
`

func (q *Queries) GetOrganization(ctx context.Context, id string) (Organization, error) {
	var o Organization
	err := q.db.QueryRowContext(ctx, getOrganization, id).Scan(&o.ID, &o.Name)
	return o, err
}

const getAccount = `
SELECT id, organization_id, name FROM accounts WHERE id = ?
`

func (q *Queries) GetAccount(ctx context.Context, id string) (Account, error) {
	var a Account
	err := q.db.QueryRowContext(ctx, getAccount, id).Scan(&a.ID, &a.OrganizationID, &a.Name)
	return a, err
}

const getProject = `
SELECT id, account_id, parent_project_id, name, creator_user_email
FROM projects WHERE id = ?
`

func (q *Queries) GetProject(ctx context.Context, id string) (Project, error) {
	var p Project
	err := q.db.QueryRowContext(ctx, getProject, id).Scan(
		&p.ID, &p.AccountID, &p.ParentProjectID, &p.Name, &p.CreatorUserEmail,
	)
	return p, err
}

const getUser = `
SELECT id, email, is_superadmin FROM users WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&u.ID, &u.Email, &u.IsSuperadmin)
	return u, err
}

const getUserByEmail = `
SELECT id, email, is_superadmin FROM users WHERE email = ?
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := q.db.QueryRowContext(ctx, getUserByEmail, email).Scan(&u.ID, &u.Email, &u.IsSuperadmin)
	return u, err
}

const getAPIKey = `
SELECT id, project_id, name, permissions FROM api_keys WHERE id = ?
`

func (q *Queries) GetAPIKey(ctx context.Context, id string) (APIKey, error) {
	var k APIKey
	err := q.db.QueryRowContext(ctx, getAPIKey, id).Scan(&k.ID, &k.ProjectID, &k.Name, &k.Permissions)
	return k, err
}

const getApplication = `
SELECT id, project_id, name, application_type FROM applications WHERE id = ?
`

func (q *Queries) GetApplication(ctx context.Context, id int64) (Application, error) {
	var a Application
	err := q.db.QueryRowContext(ctx, getApplication, id).Scan(&a.ID, &a.ProjectID, &a.Name, &a.ApplicationType)
	return a, err
}

const getConfiguration = `
SELECT id, application_id, project_id, name FROM configurations WHERE id = ?
`

func (q *Queries) GetConfiguration(ctx context.Context, id string) (Configuration, error) {
	var c Configuration
	err := q.db.QueryRowContext(ctx, getConfiguration, id).Scan(&c.ID, &c.ApplicationID, &c.ProjectID, &c.Name)
	return c, err
}

const getInstance = `
SELECT id, configuration_id, project_id, name FROM instances WHERE id = ?
`

func (q *Queries) GetInstance(ctx context.Context, id string) (Instance, error) {
	var i Instance
	err := q.db.QueryRowContext(ctx, getInstance, id).Scan(&i.ID, &i.ConfigurationID, &i.ProjectID, &i.Name)
	return i, err
}

const getDataset = `
SELECT id, project_id, name FROM datasets WHERE id = ?
`

func (q *Queries) GetDataset(ctx context.Context, id string) (Dataset, error) {
	var d Dataset
	err := q.db.QueryRowContext(ctx, getDataset, id).Scan(&d.ID, &d.ProjectID, &d.Name)
	return d, err
}

const getCollection = `
SELECT id, project_id, name FROM collections WHERE id = ?
`

func (q *Queries) GetCollection(ctx context.Context, id string) (Collection, error) {
	var c Collection
	err := q.db.QueryRowContext(ctx, getCollection, id).Scan(&c.ID, &c.ProjectID, &c.Name)
	return c, err
}

const getUserAccount = `
SELECT user_id, account_id, is_admin FROM user_accounts
WHERE user_id = ? AND account_id = ?
`

func (q *Queries) GetUserAccount(ctx context.Context, arg GetUserAccountParams) (UserAccount, error) {
	var ua UserAccount
	err := q.db.QueryRowContext(ctx, getUserAccount, arg.UserID, arg.AccountID).Scan(
		&ua.UserID, &ua.AccountID, &ua.IsAdmin,
	)
	return ua, err
}

const getUserProject = `
SELECT user_id, project_id, is_admin, permission_overrides FROM user_projects
WHERE user_id = ? AND project_id = ?
`

func (q *Queries) GetUserProject(ctx context.Context, arg GetUserProjectParams) (UserProject, error) {
	var up UserProject
	err := q.db.QueryRowContext(ctx, getUserProject, arg.UserID, arg.ProjectID).Scan(
		&up.UserID, &up.ProjectID, &up.IsAdmin, &up.PermissionOverrides,
	)
	return up, err
}

const hasRoleAllow = `
SELECT EXISTS (
    SELECT 1
    FROM role_user_accounts rua
    INNER JOIN roles r ON r.id = rua.role_id
    WHERE rua.user_id = ?
      AND rua.account_id = ?
      AND JSON_UNQUOTE(JSON_EXTRACT(r.permissions, ?)) = 'Allow'
)
`

func (q *Queries) HasRoleAllow(ctx context.Context, arg HasRoleAllowParams) (bool, error) {
	var allowed bool
	err := q.db.QueryRowContext(ctx, hasRoleAllow, arg.UserID, arg.AccountID, arg.Path).Scan(&allowed)
	return allowed, err
}

const isUserAssociatedUpToRoot = `
WITH RECURSIVE ancestry AS (
    SELECT id, parent_project_id FROM projects WHERE id = ?
    UNION ALL
    SELECT p.id, p.parent_project_id
    FROM projects p
    INNER JOIN ancestry a ON p.id = a.parent_project_id
)
SELECT NOT EXISTS (
    SELECT 1
    FROM ancestry
    LEFT JOIN user_projects up ON up.project_id = ancestry.id AND up.user_id = ?
    WHERE up.user_id IS NULL
)
`

func (q *Queries) IsUserAssociatedUpToRoot(ctx context.Context, arg IsUserAssociatedUpToRootParams) (bool, error) {
	var associated bool
	err := q.db.QueryRowContext(ctx, isUserAssociatedUpToRoot, arg.ProjectID, arg.UserID).Scan(&associated)
	return associated, err
}

const listProjectApplications = `
SELECT id, project_id, name, application_type FROM applications WHERE project_id = ?
`

func (q *Queries) ListProjectApplications(ctx context.Context, arg ListProjectApplicationsParams) ([]Application, error) {
	query := listProjectApplications
	args := []any{arg.ProjectID}
	if arg.Filter.Expr != "" {
		query = fmt.Sprintf("%s AND (%s)", query, arg.Filter.Expr)
		args = append(args, arg.Filter.Args...)
	}
	query += " ORDER BY id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.ApplicationType); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

const listProjectDatasets = `
SELECT id, project_id, name FROM datasets WHERE project_id = ?
`

func (q *Queries) ListProjectDatasets(ctx context.Context, arg ListProjectDatasetsParams) ([]Dataset, error) {
	query := listProjectDatasets
	args := []any{arg.ProjectID}
	if arg.Filter.Expr != "" {
		query = fmt.Sprintf("%s AND (%s)", query, arg.Filter.Expr)
		args = append(args, arg.Filter.Args...)
	}
	query += " ORDER BY id"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Dataset
	for rows.Next() {
		var d Dataset
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.Name); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

const createAuditEvent = `
INSERT INTO audit_events (actor_id, actor_type, entity_type, event, detail)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) error {
	_, err := q.db.ExecContext(ctx, createAuditEvent,
		arg.ActorID, arg.ActorType, arg.EntityType, arg.Event, arg.Detail,
	)
	return err
}
