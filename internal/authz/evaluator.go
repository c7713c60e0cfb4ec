package authz

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/elevaite/api/internal/audit"
	"github.com/elevaite/api/internal/db"
)

// Principal is the authenticated caller: a user from a bearer token or an api
// key from the X-elevAIte-ApiKey header.
type Principal interface {
	ActorID() string
	ActorType() string
	isPrincipal()
}

// UserPrincipal is a token-authenticated user.
type UserPrincipal struct {
	User db.User
}

func (p UserPrincipal) ActorID() string   { return p.User.ID }
func (p UserPrincipal) ActorType() string { return audit.ActorUser }
func (p UserPrincipal) isPrincipal()      {}

// APIKeyPrincipal is an api-key-authenticated caller.
type APIKeyPrincipal struct {
	Key db.APIKey
}

func (p APIKeyPrincipal) ActorID() string   { return p.Key.ID }
func (p APIKeyPrincipal) ActorType() string { return audit.ActorAPIKey }
func (p APIKeyPrincipal) isPrincipal()      {}

type principalKey struct{}

// WithPrincipal stores the authenticated principal on the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext retrieves the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Request is one authorization question: may this principal perform the
// target action on the target entity, given these request parameters.
type Request struct {
	Principal    Principal
	Params       map[string]string
	TargetEntity string
	TargetAction ActionTuple
}

// ValidationInfo carries everything resolved during evaluation. Handlers use
// it for list filtering and response shaping; introspection reads TypeResults
// for branching targets.
type ValidationInfo struct {
	Principal          Principal
	Account            db.Account
	Project            *db.Project
	AccountAssociation *db.UserAccount
	ProjectAssociation *db.UserProject

	// Resources maps entity names to their loaded rows.
	Resources map[string]any

	// TypeResults holds per-type-value outcomes for a branching target whose
	// instance was not resolvable, keyed by entity then tuple key.
	TypeResults map[string]map[string]bool

	overrideDoc *PermissionDoc
	keyDoc      *PermissionDoc
}

// Engine evaluates authorization requests against the compiled schemas and
// the entity store.
type Engine struct {
	store    db.Querier
	resolver *Resolver
	schemas  atomic.Pointer[SchemaSet]
	audit    *audit.Logger
	log      *slog.Logger
}

// NewEngine builds an engine over a store and an initial schema set.
func NewEngine(store db.Querier, schemas *SchemaSet, auditLog *audit.Logger, log *slog.Logger) *Engine {
	e := &Engine{
		store:    store,
		resolver: NewResolver(store),
		audit:    auditLog,
		log:      log,
	}
	e.schemas.Store(schemas)
	return e
}

// Schemas returns the current schema set.
func (e *Engine) Schemas() *SchemaSet {
	return e.schemas.Load()
}

// SetSchemas swaps in a recompiled schema set. In-flight evaluations keep the
// set they started with.
func (e *Engine) SetSchemas(s *SchemaSet) {
	e.schemas.Store(s)
}

// Authorize runs Validate and records the decision in the audit log and
// metrics.
func (e *Engine) Authorize(ctx context.Context, req Request) (*ValidationInfo, error) {
	start := time.Now()
	info, err := e.Validate(ctx, req)
	elapsed := time.Since(start).Seconds()

	detail := map[string]any{
		"entity": req.TargetEntity,
		"action": req.TargetAction.Key(),
	}
	if info != nil && info.Account.ID != "" {
		detail["account_id"] = info.Account.ID
	}
	if info != nil && info.Project != nil {
		detail["project_id"] = info.Project.ID
	}

	var actorID, actorType string
	if req.Principal != nil {
		actorID = req.Principal.ActorID()
		actorType = req.Principal.ActorType()
	}

	switch {
	case err == nil:
		RecordDecision("allow", req.TargetEntity, req.TargetAction.Key(), elapsed)
		e.audit.Log(ctx, actorID, actorType, entityTypeFor(req.TargetEntity), audit.AuthorizationAllow, detail)
	case KindOf(err) == KindDenied:
		RecordDecision("deny", req.TargetEntity, req.TargetAction.Key(), elapsed)
		var authzErr *Error
		if errors.As(err, &authzErr) {
			RecordDenial(authzErr.Scope)
		}
		detail["reason"] = Detail(err)
		e.audit.Log(ctx, actorID, actorType, entityTypeFor(req.TargetEntity), audit.AuthorizationDeny, detail)
	default:
		RecordDecision("error", req.TargetEntity, req.TargetAction.Key(), elapsed)
		detail["error"] = err.Error()
		e.audit.Log(ctx, actorID, actorType, entityTypeFor(req.TargetEntity), audit.AuthorizationError, detail)
	}
	return info, err
}

func entityTypeFor(entity string) audit.EntityType {
	switch entity {
	case "Account":
		return audit.AccountEntityType
	case "Project":
		return audit.ProjectEntityType
	case "Application":
		return audit.ApplicationEntityType
	case "Configuration":
		return audit.ConfigurationEntityType
	case "Instance":
		return audit.InstanceEntityType
	case "Dataset":
		return audit.DatasetEntityType
	case "Collection":
		return audit.CollectionEntityType
	case "ApiKey":
		return audit.APIKeyEntityType
	default:
		return audit.EntityType(entity)
	}
}

// Validate evaluates one authorization request. The returned ValidationInfo
// is non-nil whenever scope resolution succeeded, even on a denial, so
// callers can read TypeResults and resolved entities.
func (e *Engine) Validate(ctx context.Context, req Request) (*ValidationInfo, error) {
	if req.Principal == nil {
		return nil, Unauthenticated("no principal on request")
	}
	schemas := e.Schemas()

	ids, err := BuildIDMap(req.Params)
	if err != nil {
		return nil, err
	}

	info := &ValidationInfo{
		Principal:   req.Principal,
		Resources:   make(map[string]any),
		TypeResults: make(map[string]map[string]bool),
	}

	// Scope resolution: project first, account derived from it.
	if projectID, ok := ids["Project"]; ok {
		row, err := loadInstance(ctx, e.store, classMap["Project"], projectID)
		if err != nil {
			return nil, err
		}
		project := row.(db.Project)
		info.Project = &project
		info.Resources["Project"] = project
	}
	account, err := e.resolver.DeriveAccount(ctx, ids["Account"], info.Project)
	if err != nil {
		return nil, err
	}
	info.Account = account
	info.Resources["Account"] = account

	// Identity-level associations, checked before any resource loads beyond
	// the scope pair.
	if err := e.checkIdentity(ctx, info); err != nil {
		return info, err
	}

	// Remaining instances, then reference cross-checks over everything.
	rest, err := e.resolver.LoadInstances(ctx, ids, map[string]bool{"Account": true, "Project": true})
	if err != nil {
		return info, err
	}
	for entity, row := range rest {
		info.Resources[entity] = row
	}
	if err := ValidateAssociations(req.Params, info.Resources); err != nil {
		return info, err
	}

	target := req.TargetEntity
	action := req.TargetAction
	if target != "" && !schemas.Account.HasAction(target, action) {
		return info, Internal("action %s is not defined for entity %s", action.Key(), target)
	}
	if target != "" {
		if err := e.checkPathEntities(schemas, info, ids, target, action); err != nil {
			return info, err
		}
	}

	// Superadmins and account admins bypass scope evaluation.
	if admin := e.adminShortCircuit(info); admin {
		if target != "" {
			e.fillAdminTypeResults(schemas, info, target)
		}
		return info, nil
	}

	// Precedence READ chain over resolved instances, root to leaf.
	for _, entity := range PrecedenceOrder {
		if _, ok := info.Resources[entity]; !ok {
			continue
		}
		chain, tvs, err := e.chainFor(schemas, info, entity)
		if err != nil {
			return info, err
		}
		if err := e.checkEntity(ctx, schemas, info, chain, tvs, ActionRead); err != nil {
			return info, err
		}
	}

	if target == "" {
		return info, nil
	}
	return info, e.checkTarget(ctx, schemas, info, target, action)
}

// checkIdentity enforces the identity-level association requirements that
// precede any permission lookup.
func (e *Engine) checkIdentity(ctx context.Context, info *ValidationInfo) error {
	switch p := info.Principal.(type) {
	case UserPrincipal:
		if p.User.IsSuperadmin {
			return nil
		}
		ua, err := e.store.GetUserAccount(ctx, db.GetUserAccountParams{
			UserID:    p.User.ID,
			AccountID: info.Account.ID,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Denied("", "user '%s' is not associated with account '%s'", p.User.ID, info.Account.ID)
			}
			return Unavailable(err, "loading account association for user '%s'", p.User.ID)
		}
		info.AccountAssociation = &ua

		if info.Project == nil || ua.IsAdmin {
			return nil
		}
		up, err := e.store.GetUserProject(ctx, db.GetUserProjectParams{
			UserID:    p.User.ID,
			ProjectID: info.Project.ID,
		})
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return Denied("", "user '%s' is not associated with project '%s'", p.User.ID, info.Project.ID)
			}
			return Unavailable(err, "loading project association for user '%s'", p.User.ID)
		}
		info.ProjectAssociation = &up

		associated, err := e.store.IsUserAssociatedUpToRoot(ctx, db.IsUserAssociatedUpToRootParams{
			ProjectID: info.Project.ID,
			UserID:    p.User.ID,
		})
		if err != nil {
			return Unavailable(err, "checking project ancestry for user '%s'", p.User.ID)
		}
		if !associated {
			return Denied("", "user '%s' is not associated with an ancestor of project '%s'", p.User.ID, info.Project.ID)
		}

		doc, err := ParsePermissionDoc(up.PermissionOverrides)
		if err != nil {
			e.log.ErrorContext(ctx, "malformed permission overrides",
				"user_id", p.User.ID, "project_id", info.Project.ID, "err", err)
			return Internal("permission overrides for user '%s' are malformed", p.User.ID)
		}
		info.overrideDoc = doc
		return nil

	case APIKeyPrincipal:
		if info.Project == nil {
			return Mismatch("api key requests require a project scope")
		}
		if p.Key.ProjectID != info.Project.ID {
			return Denied(ScopeAPIKeyDeny, "api key is not bound to project '%s'", info.Project.ID)
		}
		doc, err := ParsePermissionDoc(p.Key.Permissions)
		if err != nil {
			e.log.ErrorContext(ctx, "malformed api key permissions", "apikey_id", p.Key.ID, "err", err)
			return Internal("permissions for api key '%s' are malformed", p.Key.ID)
		}
		info.keyDoc = doc
		return nil

	default:
		return Internal("unknown principal type")
	}
}

// checkPathEntities verifies that every ancestor the schema requires for the
// target action arrived as a request parameter. The target's own id may be
// absent, as on creates.
func (e *Engine) checkPathEntities(schemas *SchemaSet, info *ValidationInfo, ids map[string]string, target string, action ActionTuple) error {
	required := schemas.Account.PathEntities(target, action)
	for entity := range required {
		if entity == target {
			continue
		}
		if _, ok := info.Resources[entity]; !ok {
			if _, supplied := ids[entity]; !supplied {
				return Mismatch("no %s id in request for %s %s", entity, action.Key(), target)
			}
		}
	}
	return nil
}

func (e *Engine) adminShortCircuit(info *ValidationInfo) bool {
	if p, ok := info.Principal.(UserPrincipal); ok {
		if p.User.IsSuperadmin {
			return true
		}
	}
	return info.AccountAssociation != nil && info.AccountAssociation.IsAdmin
}

// fillAdminTypeResults records an all-allow outcome for a branching target so
// introspection sees the same shape admins and non-admins produce.
func (e *Engine) fillAdminTypeResults(schemas *SchemaSet, info *ValidationInfo, target string) {
	if _, resolved := info.Resources[target]; resolved {
		return
	}
	tuples := schemas.Account.TypeValuesFor(target)
	if len(tuples) == 0 {
		return
	}
	results := make(map[string]bool, len(tuples))
	for _, tv := range tuples {
		results[tv.Key()] = true
	}
	info.TypeResults[target] = results
}

// chainFor builds the canonical entity chain for an entity together with the
// type-value tuples of its resolved typed ancestors.
func (e *Engine) chainFor(schemas *SchemaSet, info *ValidationInfo, entity string) ([]string, []TypeValues, error) {
	chain, ok := schemas.Account.Chain(entity)
	if !ok {
		return nil, nil, Internal("entity %s has no chain in the account schema", entity)
	}
	tvs := make([]TypeValues, len(chain))
	for i, name := range chain {
		d, ok := classMap[name]
		if !ok {
			return nil, nil, Internal("no descriptor for entity %s", name)
		}
		if d.TypeValue == nil {
			tvs[i] = TypeValues{}
			continue
		}
		row, ok := info.Resources[name]
		if !ok {
			return nil, nil, Internal("typed ancestor %s of %s was not resolved", name, entity)
		}
		tvs[i] = d.TypeValue(row)
	}
	return chain, tvs, nil
}

// checkTarget runs the target action after the precedence chain has passed.
// A branching target without a resolved instance fans out over the declared
// type-value tuples and records per-tuple outcomes instead of raising on an
// individual denial.
func (e *Engine) checkTarget(ctx context.Context, schemas *SchemaSet, info *ValidationInfo, target string, action ActionTuple) error {
	d, ok := classMap[target]
	if !ok {
		return Internal("no descriptor for entity %s", target)
	}
	_, resolved := info.Resources[target]

	if resolved || d.TypeValue == nil {
		chain, tvs, err := e.chainFor(schemas, info, target)
		if err != nil {
			return err
		}
		return e.checkEntity(ctx, schemas, info, chain, tvs, action)
	}

	// Branching target: the instance does not exist yet, so its type is
	// unknown. Evaluate every declared tuple.
	chain, ok := schemas.Account.Chain(target)
	if !ok {
		return Internal("entity %s has no chain in the account schema", target)
	}
	prefix := make([]TypeValues, len(chain)-1)
	for i, name := range chain[:len(chain)-1] {
		ad := classMap[name]
		if ad.TypeValue == nil {
			prefix[i] = TypeValues{}
			continue
		}
		row, ok := info.Resources[name]
		if !ok {
			return Internal("typed ancestor %s of %s was not resolved", name, target)
		}
		prefix[i] = ad.TypeValue(row)
	}

	tuples := schemas.Account.TypeValuesFor(target)
	if len(tuples) == 0 {
		return Internal("entity %s declares branching types but no type values", target)
	}
	results := make(map[string]bool, len(tuples))
	var anyAllowed bool
	for _, tv := range tuples {
		tvs := append(append([]TypeValues{}, prefix...), tv)
		err := e.checkEntity(ctx, schemas, info, chain, tvs, action)
		switch {
		case err == nil:
			results[tv.Key()] = true
			anyAllowed = true
		case KindOf(err) == KindDenied:
			results[tv.Key()] = false
		default:
			return err
		}
	}
	info.TypeResults[target] = results
	if !anyAllowed {
		return Denied("", "%s %s is denied for every %s type", action.Key(), target, target)
	}
	return nil
}

// checkEntity evaluates one (chain, type values, action) combination through
// the scopes that apply to the principal.
func (e *Engine) checkEntity(ctx context.Context, schemas *SchemaSet, info *ValidationInfo, chain []string, tvs []TypeValues, action ActionTuple) error {
	switch p := info.Principal.(type) {
	case UserPrincipal:
		return e.checkUser(ctx, schemas, info, p, chain, tvs, action)
	case APIKeyPrincipal:
		return e.checkAPIKey(schemas, info, p, chain, tvs, action)
	default:
		return Internal("unknown principal type")
	}
}

func (e *Engine) checkUser(ctx context.Context, schemas *SchemaSet, info *ValidationInfo, p UserPrincipal, chain []string, tvs []TypeValues, action ActionTuple) error {
	// Project admins pass every check scoped under their project. The
	// ancestry check already ran at identity level.
	if info.ProjectAssociation != nil && info.ProjectAssociation.IsAdmin {
		return nil
	}

	leafPath, ok := schemas.Account.LeafPath(chain, tvs, action)
	if !ok {
		e.log.ErrorContext(ctx, "account schema has no leaf for check",
			"chain", chain, "action", action.Key())
		return Internal("no account-scope permission defined for %s %s", action.Key(), chain[len(chain)-1])
	}
	allowed, err := e.store.HasRoleAllow(ctx, db.HasRoleAllowParams{
		UserID:    p.User.ID,
		AccountID: info.Account.ID,
		Path:      JSONPath(leafPath),
	})
	if err != nil {
		return Unavailable(err, "checking role permissions for user '%s'", p.User.ID)
	}
	if !allowed {
		return Denied(ScopeAccountDeny, "no role grants %s on %s", action.Key(), chain[len(chain)-1])
	}

	// Project-level override documents can only revoke.
	if info.overrideDoc == nil {
		return nil
	}
	subChain, subTvs, ok := projectRelative(chain, tvs)
	if !ok {
		return nil
	}
	overridePath, ok := schemas.Project.LeafPath(subChain, subTvs, action)
	if !ok {
		return nil
	}
	effect, err := info.overrideDoc.Effect(overridePath)
	if err != nil {
		e.log.ErrorContext(ctx, "malformed permission overrides",
			"user_id", p.User.ID, "err", err)
		return Internal("permission overrides for user '%s' are malformed", p.User.ID)
	}
	if effect == EffectDeny {
		return Denied(ScopeProjectDeny, "%s on %s is revoked for this project", action.Key(), chain[len(chain)-1])
	}
	return nil
}

func (e *Engine) checkAPIKey(schemas *SchemaSet, info *ValidationInfo, p APIKeyPrincipal, chain []string, tvs []TypeValues, action ActionTuple) error {
	// The key's project binding stands in for Project READ.
	if len(chain) == 1 && chain[0] == "Project" {
		return nil
	}
	subChain, subTvs, ok := projectRelative(chain, tvs)
	if !ok || len(subChain) == 0 {
		return Denied(ScopeAPIKeyDeny, "api keys cannot perform %s on %s", action.Key(), chain[len(chain)-1])
	}
	keyPath, ok := schemas.APIKey.LeafPath(subChain, subTvs, action)
	if !ok {
		// Deny by default: actions absent from the api key scope schema are
		// not available to keys at all.
		return Denied(ScopeAPIKeyDeny, "api keys cannot perform %s on %s", action.Key(), chain[len(chain)-1])
	}
	effect, err := info.keyDoc.Effect(keyPath)
	if err != nil {
		return Internal("permissions for api key '%s' are malformed", p.Key.ID)
	}
	if effect != EffectAllow {
		return Denied(ScopeAPIKeyDeny, "api key does not grant %s on %s", action.Key(), chain[len(chain)-1])
	}
	return nil
}

// projectRelative strips the leading Project element off an account-scope
// chain, yielding the equivalent project-relative chain. Returns false for
// chains not rooted at Project.
func projectRelative(chain []string, tvs []TypeValues) ([]string, []TypeValues, bool) {
	if len(chain) == 0 || chain[0] != "Project" {
		return nil, nil, false
	}
	return chain[1:], tvs[1:], true
}
