// Package authz implements the permission resolution pipeline: schema
// compilation, entity resolution, the precedence-ordered multi-scope
// evaluator, permissions introspection, and list-query filtering.
package authz

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
)

// Scope identifies one of the three permission universes.
type Scope string

const (
	ScopeAccount Scope = "account"
	ScopeProject Scope = "project"
	ScopeAPIKey  Scope = "apikey"
)

// Schema node key prefixes. Any key outside these four is a compile error.
const (
	prefixEntity     = "ENTITY_"
	prefixAction     = "ACTION_"
	prefixTypeNames  = "TYPENAMES_"
	prefixTypeValues = "TYPEVALUES_"
)

// Permission leaf values.
const (
	EffectAllow = "Allow"
	EffectDeny  = "Deny"
)

//go:embed schemas/account_scope.json
var accountScopeDoc []byte

//go:embed schemas/project_scope.json
var projectScopeDoc []byte

//go:embed schemas/apikey_scope.json
var apikeyScopeDoc []byte

// ActionTuple is the sequence of ACTION_ nodes traversed from an entity to a
// permission leaf, e.g. ("SERVICENOW", "TICKET", "INGEST").
type ActionTuple []string

// Action builds an action tuple from verbs.
func Action(verbs ...string) ActionTuple {
	return ActionTuple(verbs)
}

// ActionRead is the single-verb tuple used by the precedence READ chain.
var ActionRead = Action("READ")

// Key returns the canonical underscore-joined form of the tuple.
func (t ActionTuple) Key() string {
	return strings.Join(t, "_")
}

// TypeValues is one ordered tuple of branching-type column values. The empty
// tuple stands for an entity without branching types.
type TypeValues []string

// Key returns the canonical double-underscore-joined form of the tuple.
func (tv TypeValues) Key() string {
	return strings.Join(tv, "__")
}

// SchemaSet holds the three compiled scope schemas. Immutable after
// construction; the reloader swaps whole sets atomically.
type SchemaSet struct {
	Account *CompiledSchema
	Project *CompiledSchema
	APIKey  *CompiledSchema
}

// DefaultSchemas compiles the embedded scope documents.
func DefaultSchemas() (*SchemaSet, error) {
	return CompileSet(accountScopeDoc, projectScopeDoc, apikeyScopeDoc)
}

// CompileSet compiles the three scope documents into a SchemaSet.
func CompileSet(account, project, apikey []byte) (*SchemaSet, error) {
	acc, err := Compile(ScopeAccount, account)
	if err != nil {
		return nil, err
	}
	proj, err := Compile(ScopeProject, project)
	if err != nil {
		return nil, err
	}
	key, err := Compile(ScopeAPIKey, apikey)
	if err != nil {
		return nil, err
	}
	return &SchemaSet{Account: acc, Project: proj, APIKey: key}, nil
}

// PermissionDoc is a parsed Role / User_Project override / ApiKey permission
// document. The documents share the schema grammar; leaves are Allow or Deny.
// Parsed once per principal so permission checks are map walks.
type PermissionDoc struct {
	root map[string]any
}

// ParsePermissionDoc parses a JSON permission document. A nil or empty
// document is valid and contains no leaves.
func ParsePermissionDoc(raw []byte) (*PermissionDoc, error) {
	if len(raw) == 0 {
		return &PermissionDoc{}, nil
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("malformed permission document: %w", err)
	}
	return &PermissionDoc{root: root}, nil
}

// Effect walks the document along the given leaf path and returns the leaf
// value. An absent path returns "". A leaf that is neither Allow nor Deny, or
// a non-object interior node, is a malformed-document error.
func (d *PermissionDoc) Effect(path []string) (string, error) {
	if d == nil || d.root == nil {
		return "", nil
	}
	var cur any = d.root
	for _, key := range path {
		node, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("malformed permission document: %q is not an object", key)
		}
		next, ok := node[key]
		if !ok {
			return "", nil
		}
		cur = next
	}
	leaf, ok := cur.(string)
	if !ok {
		return "", fmt.Errorf("malformed permission document: leaf at %q is not a string", strings.Join(path, "."))
	}
	if leaf != EffectAllow && leaf != EffectDeny {
		return "", fmt.Errorf("malformed permission document: leaf value %q", leaf)
	}
	return leaf, nil
}

// JSONPath renders a leaf path as a MySQL JSON path expression for the
// role-allow EXISTS query.
func JSONPath(path []string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, key := range path {
		fmt.Fprintf(&b, ".%q", key)
	}
	return b.String()
}
