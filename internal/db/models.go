// Package db provides the entity store used by the authorization engine.
// The engine reads these entities but does not own their lifecycle; every
// request re-reads from the database.
package db

import (
	"database/sql"

	"github.com/elevaite/api/internal/db/types"
)

// Organization is the top-level tenant root.
type Organization struct {
	ID   string
	Name string
}

// Account is the unit of billing and user membership within an organization.
type Account struct {
	ID             string
	OrganizationID string
	Name           string
}

// Project belongs to one account and may be nested under a parent project in
// the same account.
type Project struct {
	ID               string
	AccountID        string
	ParentProjectID  sql.NullString
	Name             string
	CreatorUserEmail string
}

// User is a global identity resolved by the upstream authenticator.
type User struct {
	ID           string
	Email        string
	IsSuperadmin bool
}

// UserAccount is the user-account membership junction.
type UserAccount struct {
	UserID    string
	AccountID string
	IsAdmin   bool
}

// UserProject is the user-project association junction. PermissionOverrides
// is a JSON document structurally isomorphic to the project-scoped schema.
type UserProject struct {
	UserID              string
	ProjectID           string
	IsAdmin             bool
	PermissionOverrides types.RawJSON
}

// Role is a named bundle of account-scoped permissions.
type Role struct {
	ID          string
	AccountID   string
	Name        string
	Permissions types.RawJSON
}

// RoleUserAccount assigns a role to a (user, account) pair.
type RoleUserAccount struct {
	RoleID    string
	UserID    string
	AccountID string
}

// APIKey is scoped to one project and carries its own permission document.
type APIKey struct {
	ID          string
	ProjectID   string
	Name        string
	Permissions types.RawJSON
}

// Application is a project resource with a branching type column.
type Application struct {
	ID              int64
	ProjectID       string
	Name            string
	ApplicationType string
}

// Configuration belongs to an application.
type Configuration struct {
	ID            string
	ApplicationID int64
	ProjectID     string
	Name          string
}

// Instance belongs to a configuration.
type Instance struct {
	ID              string
	ConfigurationID string
	ProjectID       string
	Name            string
}

// Dataset is a project resource.
type Dataset struct {
	ID        string
	ProjectID string
	Name      string
}

// Collection is a project resource.
type Collection struct {
	ID        string
	ProjectID string
	Name      string
}

// AuditEvent records an authorization decision.
type AuditEvent struct {
	ID         int64
	ActorID    string
	ActorType  string
	EntityType string
	Event      string
	Detail     types.RawJSON
}
