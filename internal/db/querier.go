package db

import (
	"context"
	"database/sql"

	"github.com/elevaite/api/internal/db/types"
)

// DBTX is the minimal database surface the queries need. Both *sql.DB and
// *sql.Tx satisfy it, so validation can run inside an ambient transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

type GetUserAccountParams struct {
	UserID    string
	AccountID string
}

type GetUserProjectParams struct {
	UserID    string
	ProjectID string
}

type HasRoleAllowParams struct {
	UserID    string
	AccountID string
	// Path is a MySQL JSON path into the role permissions document,
	// e.g. $."ENTITY_Project"."ACTION_READ".
	Path string
}

type IsUserAssociatedUpToRootParams struct {
	UserID    string
	ProjectID string
}

// Filter is an optional predicate appended to a list query's WHERE clause.
type Filter struct {
	Expr string
	Args []any
}

type ListProjectApplicationsParams struct {
	ProjectID string
	Filter    Filter
}

type ListProjectDatasetsParams struct {
	ProjectID string
	Filter    Filter
}

type CreateAuditEventParams struct {
	ActorID    string
	ActorType  string
	EntityType string
	Event      string
	Detail     types.RawJSON
}

// Querier is the store interface the engine depends on. Tests substitute a
// mock; production uses Queries over a connection pool.
type Querier interface {
	GetOrganization(ctx context.Context, id string) (Organization, error)
	GetAccount(ctx context.Context, id string) (Account, error)
	GetProject(ctx context.Context, id string) (Project, error)
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetAPIKey(ctx context.Context, id string) (APIKey, error)
	GetApplication(ctx context.Context, id int64) (Application, error)
	GetConfiguration(ctx context.Context, id string) (Configuration, error)
	GetInstance(ctx context.Context, id string) (Instance, error)
	GetDataset(ctx context.Context, id string) (Dataset, error)
	GetCollection(ctx context.Context, id string) (Collection, error)

	GetUserAccount(ctx context.Context, arg GetUserAccountParams) (UserAccount, error)
	GetUserProject(ctx context.Context, arg GetUserProjectParams) (UserProject, error)

	// HasRoleAllow reports whether any role assigned to the (user, account)
	// pair contains "Allow" at the given JSON path. Disjunctive across roles.
	HasRoleAllow(ctx context.Context, arg HasRoleAllowParams) (bool, error)

	// IsUserAssociatedUpToRoot reports whether a user_projects row exists for
	// every project on the chain from the given project up to its top-level
	// ancestor, inclusive.
	IsUserAssociatedUpToRoot(ctx context.Context, arg IsUserAssociatedUpToRootParams) (bool, error)

	ListProjectApplications(ctx context.Context, arg ListProjectApplicationsParams) ([]Application, error)
	ListProjectDatasets(ctx context.Context, arg ListProjectDatasetsParams) ([]Dataset, error)

	CreateAuditEvent(ctx context.Context, arg CreateAuditEventParams) error
}
