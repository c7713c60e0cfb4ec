package authz

import (
	"context"
	"strings"

	"github.com/elevaite/api/internal/db"
)

// ListFilter derives the row filter a list query must carry so the caller
// only sees rows of the branching types they may read. Untyped entities and
// principals that passed without per-type outcomes get an empty filter.
//
// The filter excludes exactly the denied tuples; a row matching no declared
// tuple is not excluded, so schema additions fail open to visibility rather
// than hiding rows the schema never ruled on.
func (e *Engine) ListFilter(ctx context.Context, info *ValidationInfo, entity string) (db.Filter, error) {
	schemas := e.Schemas()
	cols := schemas.Account.TypeNames(entity)
	if len(cols) == 0 {
		return db.Filter{}, nil
	}

	tupleResults := info.TypeResults[entity]
	if tupleResults == nil {
		// The precedence run pinned a concrete instance or short-circuited
		// on an admin; evaluate every declared tuple now.
		var err error
		tupleResults, err = e.evaluateTuples(ctx, info, entity)
		if err != nil {
			return db.Filter{}, err
		}
	}

	var clauses []string
	var args []any
	for _, tv := range schemas.Account.TypeValuesFor(entity) {
		allowed, seen := tupleResults[tv.Key()]
		if !seen || allowed {
			continue
		}
		preds := make([]string, len(cols))
		for i, col := range cols {
			preds[i] = columnName(col) + " = ?"
			args = append(args, tv[i])
		}
		clauses = append(clauses, "NOT ("+strings.Join(preds, " AND ")+")")
	}
	if len(clauses) == 0 {
		return db.Filter{}, nil
	}
	return db.Filter{Expr: strings.Join(clauses, " AND "), Args: args}, nil
}

// evaluateTuples runs the per-tuple checks for a branching entity on demand.
func (e *Engine) evaluateTuples(ctx context.Context, info *ValidationInfo, entity string) (map[string]bool, error) {
	schemas := e.Schemas()
	tuples := schemas.Account.TypeValuesFor(entity)
	results := make(map[string]bool, len(tuples))

	if e.adminShortCircuit(info) {
		for _, tv := range tuples {
			results[tv.Key()] = true
		}
		return results, nil
	}

	chain, ok := schemas.Account.Chain(entity)
	if !ok {
		return nil, Internal("entity %s has no chain in the account schema", entity)
	}
	prefix := make([]TypeValues, len(chain)-1)
	for i, name := range chain[:len(chain)-1] {
		d := classMap[name]
		if d.TypeValue == nil {
			prefix[i] = TypeValues{}
			continue
		}
		row, ok := info.Resources[name]
		if !ok {
			return nil, Internal("typed ancestor %s of %s was not resolved", name, entity)
		}
		prefix[i] = d.TypeValue(row)
	}

	for _, tv := range tuples {
		tvs := append(append([]TypeValues{}, prefix...), tv)
		err := e.checkEntity(ctx, schemas, info, chain, tvs, ActionRead)
		switch {
		case err == nil:
			results[tv.Key()] = true
		case KindOf(err) == KindDenied:
			results[tv.Key()] = false
		default:
			return nil, err
		}
	}
	return results, nil
}

// columnName maps a schema branching-type column to its storage column.
func columnName(col string) string {
	return normalizeParam(col)
}
