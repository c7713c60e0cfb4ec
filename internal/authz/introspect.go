package authz

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/elevaite/api/internal/audit"
	"github.com/elevaite/api/internal/db"
)

// Reserved probe fields answered from the principal's associations rather
// than the permission scopes.
const (
	ProbeIsAccountAdmin = "IS_ACCOUNT_ADMIN"
	ProbeIsProjectAdmin = "IS_PROJECT_ADMIN"
)

// ProbeParams carries the extra id parameters for one probe, e.g. an
// application_id to pin a branching probe to a concrete instance.
type ProbeParams map[string]string

// EvaluateRequest is a batch of permission probes sharing one scope.
type EvaluateRequest struct {
	AccountID string                 `json:"account_id"`
	ProjectID string                 `json:"project_id,omitempty"`
	Probes    map[string]ProbeParams `json:"probes"`
}

// ProbeResult is the outcome of one probe. For branching targets without a
// pinned instance, SPECIFIC_PERMISSIONS breaks the answer down per
// branching-type value and OVERALL_PERMISSIONS is their disjunction.
type ProbeResult struct {
	Overall  bool                       `json:"OVERALL_PERMISSIONS"`
	Specific map[string]map[string]bool `json:"SPECIFIC_PERMISSIONS,omitempty"`
	Error    string                     `json:"ERROR,omitempty"`
}

// Evaluate answers a batch of permission probes for a principal. Probes are
// independent: a denial or a missing scope is reported in that probe's
// result while the rest of the batch proceeds. A probe naming an action the
// schema does not declare is a malformed request, not a recoverable probe,
// and aborts the batch, as do store failures.
func (e *Engine) Evaluate(ctx context.Context, principal Principal, req EvaluateRequest) (map[string]ProbeResult, error) {
	if principal == nil {
		return nil, Unauthenticated("no principal on request")
	}
	if req.AccountID == "" && req.ProjectID == "" {
		return nil, Mismatch("an account or project scope is required")
	}

	results := make(map[string]ProbeResult, len(req.Probes))
	for field, params := range req.Probes {
		result, err := e.evaluateProbe(ctx, principal, req, field, params)
		if err != nil {
			return nil, err
		}
		switch {
		case result.Error != "":
			RecordProbe("error")
		case result.Overall:
			RecordProbe("allow")
		default:
			RecordProbe("deny")
		}
		results[field] = result
	}

	e.audit.Log(ctx, principal.ActorID(), principal.ActorType(),
		audit.PermissionsEntityType, audit.PermissionsEvaluate, map[string]any{
			"account_id": req.AccountID,
			"project_id": req.ProjectID,
			"probes":     len(req.Probes),
		})
	return results, nil
}

func (e *Engine) evaluateProbe(ctx context.Context, principal Principal, req EvaluateRequest, field string, params ProbeParams) (ProbeResult, error) {
	switch field {
	case ProbeIsAccountAdmin:
		return e.adminFlag(ctx, principal, req, false)
	case ProbeIsProjectAdmin:
		return e.adminFlag(ctx, principal, req, true)
	}

	entity, action, err := parseProbeField(field)
	if err != nil {
		return ProbeResult{}, Internal("malformed probe field '%s'", field)
	}
	schemas := e.Schemas()
	if !schemas.Account.HasAction(entity, action) {
		return ProbeResult{}, Internal("unknown permission probe '%s'", field)
	}
	if entity != "Project" && req.ProjectID == "" {
		return ProbeResult{Error: "probe '" + field + "' requires a project scope"}, nil
	}

	merged := make(map[string]string, len(params)+2)
	for name, value := range params {
		merged[name] = value
	}
	if req.AccountID != "" {
		merged["account_id"] = req.AccountID
	}
	if req.ProjectID != "" {
		merged["project_id"] = req.ProjectID
	}

	info, err := e.Validate(ctx, Request{
		Principal:    principal,
		Params:       merged,
		TargetEntity: entity,
		TargetAction: action,
	})
	switch {
	case err == nil:
	case KindOf(err) == KindDenied:
		return ProbeResult{Overall: false, Specific: specificFromResults(schemas, entity, info)}, nil
	case KindOf(err) == KindMismatch, KindOf(err) == KindNotFound:
		return ProbeResult{Error: Detail(err)}, nil
	default:
		return ProbeResult{}, err
	}

	specific := specificFromResults(schemas, entity, info)
	return ProbeResult{Overall: true, Specific: specific}, nil
}

// specificFromResults reshapes per-tuple outcomes into a per-column,
// per-value map. A value appearing in several tuples reads allowed when any
// of them is allowed.
func specificFromResults(schemas *SchemaSet, entity string, info *ValidationInfo) map[string]map[string]bool {
	if info == nil {
		return nil
	}
	tupleResults, ok := info.TypeResults[entity]
	if !ok {
		return nil
	}
	cols := schemas.Account.TypeNames(entity)
	if len(cols) == 0 {
		return nil
	}
	specific := make(map[string]map[string]bool, len(cols))
	for _, col := range cols {
		specific[col] = make(map[string]bool)
	}
	for _, tv := range schemas.Account.TypeValuesFor(entity) {
		allowed, seen := tupleResults[tv.Key()]
		if !seen {
			continue
		}
		for i, col := range cols {
			if i >= len(tv) {
				break
			}
			specific[col][tv[i]] = specific[col][tv[i]] || allowed
		}
	}
	return specific
}

// adminFlag answers the reserved admin probes from the association rows.
// Superadmins read true for both.
func (e *Engine) adminFlag(ctx context.Context, principal Principal, req EvaluateRequest, project bool) (ProbeResult, error) {
	p, ok := principal.(UserPrincipal)
	if !ok {
		return ProbeResult{Overall: false}, nil
	}
	if p.User.IsSuperadmin {
		return ProbeResult{Overall: true}, nil
	}

	if !project {
		if req.AccountID == "" && req.ProjectID == "" {
			return ProbeResult{Error: "IS_ACCOUNT_ADMIN requires an account scope"}, nil
		}
		accountID := req.AccountID
		if accountID == "" {
			proj, err := e.store.GetProject(ctx, req.ProjectID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ProbeResult{Error: "Project '" + req.ProjectID + "' not found"}, nil
				}
				return ProbeResult{}, Unavailable(err, "loading Project '%s'", req.ProjectID)
			}
			accountID = proj.AccountID
		}
		ua, err := e.store.GetUserAccount(ctx, db.GetUserAccountParams{UserID: p.User.ID, AccountID: accountID})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ProbeResult{Overall: false}, nil
			}
			return ProbeResult{}, Unavailable(err, "loading account association for user '%s'", p.User.ID)
		}
		return ProbeResult{Overall: ua.IsAdmin}, nil
	}

	if req.ProjectID == "" {
		return ProbeResult{Error: "IS_PROJECT_ADMIN requires a project scope"}, nil
	}
	up, err := e.store.GetUserProject(ctx, db.GetUserProjectParams{UserID: p.User.ID, ProjectID: req.ProjectID})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ProbeResult{Overall: false}, nil
		}
		return ProbeResult{}, Unavailable(err, "loading project association for user '%s'", p.User.ID)
	}
	return ProbeResult{Overall: up.IsAdmin}, nil
}

// parseProbeField splits a probe field into its entity and action tuple. The
// entity is the token before the first underscore; the remainder is the
// underscore-joined action tuple.
func parseProbeField(field string) (string, ActionTuple, error) {
	idx := strings.Index(field, "_")
	if idx <= 0 || idx == len(field)-1 {
		return "", nil, errors.New("malformed probe field '" + field + "'")
	}
	entity := field[:idx]
	action := ActionTuple(strings.Split(field[idx+1:], "_"))
	return entity, action, nil
}
