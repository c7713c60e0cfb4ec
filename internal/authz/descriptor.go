package authz

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/elevaite/api/internal/db"
)

// Descriptor ties an entity name to its path parameter, loader, branching-type
// extraction, and parent references.
type Descriptor struct {
	// Name is the schema entity name, e.g. "Application".
	Name string

	// Param is the path/header parameter carrying the entity id.
	Param string

	// Load fetches the row by id.
	Load func(ctx context.Context, store db.Querier, id string) (any, error)

	// ID returns the row's id rendered as a string.
	ID func(row any) string

	// TypeValue returns the row's branching-type tuple, nil when the entity
	// has no branching types.
	TypeValue func(row any) TypeValues

	// Refs returns the row's references to other entities by param name, used
	// to cross-check resolved instances against request parameters.
	Refs func(row any) map[string]string
}

// PrecedenceOrder lists the project-rooted entities in evaluation order. The
// precedence READ chain visits resolved instances in this order before the
// target action runs.
var PrecedenceOrder = []string{
	"Project",
	"Application",
	"Configuration",
	"Instance",
	"Dataset",
	"Collection",
	"ApiKey",
}

var descriptors = []Descriptor{
	{
		Name:  "Account",
		Param: "account_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetAccount(ctx, id)
		},
		ID: func(row any) string { return row.(db.Account).ID },
		Refs: func(row any) map[string]string {
			return map[string]string{"organization_id": row.(db.Account).OrganizationID}
		},
	},
	{
		Name:  "Project",
		Param: "project_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetProject(ctx, id)
		},
		ID: func(row any) string { return row.(db.Project).ID },
		Refs: func(row any) map[string]string {
			p := row.(db.Project)
			refs := map[string]string{"account_id": p.AccountID}
			if p.ParentProjectID.Valid {
				refs["parent_project_id"] = p.ParentProjectID.String
			}
			return refs
		},
	},
	{
		Name:  "Application",
		Param: "application_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			appID, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return nil, Mismatch("application id '%s' is not an integer", id)
			}
			return store.GetApplication(ctx, appID)
		},
		ID: func(row any) string { return strconv.FormatInt(row.(db.Application).ID, 10) },
		TypeValue: func(row any) TypeValues {
			return TypeValues{row.(db.Application).ApplicationType}
		},
		Refs: func(row any) map[string]string {
			return map[string]string{"project_id": row.(db.Application).ProjectID}
		},
	},
	{
		Name:  "Configuration",
		Param: "configuration_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetConfiguration(ctx, id)
		},
		ID: func(row any) string { return row.(db.Configuration).ID },
		Refs: func(row any) map[string]string {
			c := row.(db.Configuration)
			return map[string]string{
				"application_id": strconv.FormatInt(c.ApplicationID, 10),
				"project_id":     c.ProjectID,
			}
		},
	},
	{
		Name:  "Instance",
		Param: "instance_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetInstance(ctx, id)
		},
		ID: func(row any) string { return row.(db.Instance).ID },
		Refs: func(row any) map[string]string {
			i := row.(db.Instance)
			return map[string]string{
				"configuration_id": i.ConfigurationID,
				"project_id":       i.ProjectID,
			}
		},
	},
	{
		Name:  "Dataset",
		Param: "dataset_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetDataset(ctx, id)
		},
		ID: func(row any) string { return row.(db.Dataset).ID },
		Refs: func(row any) map[string]string {
			return map[string]string{"project_id": row.(db.Dataset).ProjectID}
		},
	},
	{
		Name:  "Collection",
		Param: "collection_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetCollection(ctx, id)
		},
		ID: func(row any) string { return row.(db.Collection).ID },
		Refs: func(row any) map[string]string {
			return map[string]string{"project_id": row.(db.Collection).ProjectID}
		},
	},
	{
		Name:  "ApiKey",
		Param: "apikey_id",
		Load: func(ctx context.Context, store db.Querier, id string) (any, error) {
			return store.GetAPIKey(ctx, id)
		},
		ID: func(row any) string { return row.(db.APIKey).ID },
		Refs: func(row any) map[string]string {
			return map[string]string{"project_id": row.(db.APIKey).ProjectID}
		},
	},
}

var (
	classMap   = make(map[string]*Descriptor, len(descriptors))
	paramIndex = make(map[string]*Descriptor, len(descriptors))
)

func init() {
	for i := range descriptors {
		d := &descriptors[i]
		classMap[d.Name] = d
		paramIndex[d.Param] = d
	}
}

// DescriptorFor returns the descriptor for an entity name.
func DescriptorFor(entity string) (*Descriptor, bool) {
	d, ok := classMap[entity]
	return d, ok
}

// loadInstance fetches one entity row and maps storage errors into the
// taxonomy: a missing row is NotFound, any other failure is Unavailable.
func loadInstance(ctx context.Context, store db.Querier, d *Descriptor, id string) (any, error) {
	row, err := d.Load(ctx, store, id)
	if err != nil {
		var authzErr *Error
		if errors.As(err, &authzErr) {
			return nil, err
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NotFound("%s '%s' not found", d.Name, id)
		}
		return nil, Unavailable(err, "loading %s '%s'", d.Name, id)
	}
	return row, nil
}
