package authz

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/elevaite/api/internal/db"
)

// Resolver turns request id parameters into loaded entity rows and
// cross-checks the references between them.
type Resolver struct {
	store db.Querier
}

func NewResolver(store db.Querier) *Resolver {
	return &Resolver{store: store}
}

// normalizeParam lowers a camelCase parameter name to snake_case so header,
// path, and body spellings resolve to the same descriptor.
func normalizeParam(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 2)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BuildIDMap maps request parameters to entity names. Parameters not ending
// in _id are ignored; parent_project_id is skipped because it is validated as
// a Project attribute, not resolved as its own entity. An unrecognized *_id
// parameter means a route registered an entity the schema does not know.
func BuildIDMap(params map[string]string) (map[string]string, error) {
	ids := make(map[string]string, len(params))
	for name, value := range params {
		name = normalizeParam(name)
		if !strings.HasSuffix(name, "_id") || name == "parent_project_id" {
			continue
		}
		d, ok := paramIndex[name]
		if !ok {
			return nil, Internal("unrecognized id parameter %q", name)
		}
		ids[d.Name] = value
	}
	return ids, nil
}

// LoadInstances fetches the rows for every entity in ids, except those listed
// in skip. Missing rows are NotFound; store failures are Unavailable.
func (r *Resolver) LoadInstances(ctx context.Context, ids map[string]string, skip map[string]bool) (map[string]any, error) {
	instances := make(map[string]any, len(ids))
	for entity, id := range ids {
		if skip[entity] {
			continue
		}
		d, ok := classMap[entity]
		if !ok {
			return nil, Internal("no descriptor for entity %q", entity)
		}
		row, err := loadInstance(ctx, r.store, d, id)
		if err != nil {
			return nil, err
		}
		instances[entity] = row
	}
	return instances, nil
}

// DeriveAccount returns the account governing the request. When both ids are
// present the project must belong to the account; when only the project is
// present its account is loaded.
func (r *Resolver) DeriveAccount(ctx context.Context, accountID string, project *db.Project) (db.Account, error) {
	if project != nil {
		if accountID != "" && project.AccountID != accountID {
			return db.Account{}, Mismatch("project '%s' belongs to account '%s', not '%s'",
				project.ID, project.AccountID, accountID)
		}
		accountID = project.AccountID
	}
	if accountID == "" {
		return db.Account{}, Mismatch("no account id in request")
	}
	account, err := r.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Account{}, NotFound("Account '%s' not found", accountID)
		}
		return db.Account{}, Unavailable(err, "loading Account '%s'", accountID)
	}
	return account, nil
}

// ValidateAssociations cross-checks every resolved instance's references
// against the request parameters. A reference that contradicts a supplied
// parameter means the request stitched together unrelated entities.
func ValidateAssociations(params map[string]string, instances map[string]any) error {
	normalized := make(map[string]string, len(params))
	for name, value := range params {
		normalized[normalizeParam(name)] = value
	}
	for entity, row := range instances {
		d := classMap[entity]
		for refParam, refValue := range d.Refs(row) {
			supplied, ok := normalized[refParam]
			if !ok {
				continue
			}
			if supplied != refValue {
				return Mismatch("%s '%s' references %s '%s', request says '%s'",
					entity, d.ID(row), refParam, refValue, supplied)
			}
		}
	}
	return nil
}
