package authz

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// leafKey identifies one permission leaf by its entity chain, parallel
// type-value chain, and action tuple. All three are canonical joined forms so
// the key is comparable.
type leafKey struct {
	entities   string
	typeValues string
	actions    string
}

// CompiledSchema holds the lookup tables produced by compiling one scope
// document. Immutable after Compile; safe for concurrent reads.
type CompiledSchema struct {
	scope Scope

	// leafPaths maps (entity chain, type-value chain, action tuple) to the
	// raw schema keys from root to leaf, used to index into permission
	// documents at check time.
	leafPaths map[leafKey][]string

	// typeNames maps an entity to its ordered branching-type column names.
	typeNames map[string][]string

	// typeValues maps an entity to the ordered type-value tuples declared
	// under it.
	typeValues map[string][]TypeValues

	// validActions maps an entity to its valid action tuples.
	validActions map[string]map[string]ActionTuple

	// pathEntities maps (target entity, action tuple) to the set of entities
	// that must arrive as path parameters for that action.
	pathEntities map[string]map[string]bool

	// chains maps an entity to its canonical chain from schema root. Each
	// entity appears at exactly one position per scope.
	chains map[string][]string
}

func chainKey(chain []string) string {
	return strings.Join(chain, "/")
}

func tvChainKey(tvs []TypeValues) string {
	keys := make([]string, len(tvs))
	for i, tv := range tvs {
		keys[i] = tv.Key()
	}
	return strings.Join(keys, "/")
}

func targetKey(entity string, action ActionTuple) string {
	return entity + "\x1f" + action.Key()
}

// Compile walks a scope document depth-first and produces the lookup tables.
// Idempotent; runs at process start and on schema change. Node keys are
// visited in sorted order so compiled orderings are deterministic.
func Compile(scope Scope, doc []byte) (*CompiledSchema, error) {
	var root map[string]any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("schema %s: %w", scope, err)
	}

	c := &CompiledSchema{
		scope:        scope,
		leafPaths:    make(map[leafKey][]string),
		typeNames:    make(map[string][]string),
		typeValues:   make(map[string][]TypeValues),
		validActions: make(map[string]map[string]ActionTuple),
		pathEntities: make(map[string]map[string]bool),
		chains:       make(map[string][]string),
	}
	if err := c.walk(root, nil, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("schema %s: %w", scope, err)
	}
	return c, nil
}

// padTypeValues appends an empty tuple for the innermost entity when it has no
// branching types, keeping the type-value chain parallel to the entity chain.
func padTypeValues(entities []string, tvs []TypeValues) []TypeValues {
	if len(tvs) >= len(entities) {
		return tvs
	}
	padded := make([]TypeValues, len(tvs), len(entities))
	copy(padded, tvs)
	for len(padded) < len(entities) {
		padded = append(padded, TypeValues{})
	}
	return padded
}

func sortedKeys(node map[string]any) []string {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *CompiledSchema) walk(node map[string]any, entities []string, tvs []TypeValues, actions []string, path []string) error {
	// An entity node that declares branching types carries the whole subtree
	// under its TYPENAMES_ child; mixing typed and untyped children would
	// make the type-value chain ambiguous.
	var hasTypeNames bool
	for key := range node {
		if strings.HasPrefix(key, prefixTypeNames) {
			hasTypeNames = true
		}
	}
	if hasTypeNames && len(node) > 1 {
		return fmt.Errorf("entity %q declares branching types alongside other nodes", last(entities))
	}

	for _, key := range sortedKeys(node) {
		value := node[key]
		switch {
		case strings.HasPrefix(key, prefixEntity):
			if err := c.walkEntity(key, value, entities, tvs, actions, path); err != nil {
				return err
			}
		case strings.HasPrefix(key, prefixAction):
			if err := c.walkAction(key, value, entities, tvs, actions, path); err != nil {
				return err
			}
		case strings.HasPrefix(key, prefixTypeNames):
			if err := c.walkTypeNames(key, value, entities, tvs, path); err != nil {
				return err
			}
		case strings.HasPrefix(key, prefixTypeValues):
			return fmt.Errorf("%q: TYPEVALUES_ node outside a TYPENAMES_ subtree", key)
		default:
			return fmt.Errorf("unknown schema key %q", key)
		}
	}
	return nil
}

func (c *CompiledSchema) walkEntity(key string, value any, entities []string, tvs []TypeValues, actions []string, path []string) error {
	name := strings.TrimPrefix(key, prefixEntity)
	if name == "" {
		return fmt.Errorf("%q: empty entity name", key)
	}
	if strings.Contains(name, "_") {
		// Single-token names keep probe field parsing unambiguous.
		return fmt.Errorf("%q: entity names must be single tokens", key)
	}
	if len(actions) > 0 {
		return fmt.Errorf("%q: entity nested under an action", key)
	}
	child, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%q: entity node must be an object", key)
	}

	tvs = padTypeValues(entities, tvs)
	chain := append(append([]string{}, entities...), name)
	if existing, ok := c.chains[name]; ok && chainKey(existing) != chainKey(chain) {
		return fmt.Errorf("entity %q appears at multiple positions (%s vs %s)",
			name, chainKey(existing), chainKey(chain))
	}
	c.chains[name] = chain

	return c.walk(child, chain, tvs, nil, append(append([]string{}, path...), key))
}

func (c *CompiledSchema) walkTypeNames(key string, value any, entities []string, tvs []TypeValues, path []string) error {
	if len(entities) == 0 {
		return fmt.Errorf("%q: TYPENAMES_ node outside an entity", key)
	}
	if len(tvs) != len(entities)-1 {
		return fmt.Errorf("%q: duplicate TYPENAMES_ declaration", key)
	}
	entity := entities[len(entities)-1]
	cols := strings.Split(strings.TrimPrefix(key, prefixTypeNames), "__")
	if existing, ok := c.typeNames[entity]; ok && strings.Join(existing, "__") != strings.Join(cols, "__") {
		return fmt.Errorf("entity %q declares conflicting branching-type columns", entity)
	}
	c.typeNames[entity] = cols

	child, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%q: TYPENAMES_ node must be an object", key)
	}
	for _, tvKey := range sortedKeys(child) {
		if !strings.HasPrefix(tvKey, prefixTypeValues) {
			return fmt.Errorf("%q: TYPENAMES_ child %q is not a TYPEVALUES_ node", key, tvKey)
		}
		vals := TypeValues(strings.Split(strings.TrimPrefix(tvKey, prefixTypeValues), "__"))
		if len(vals) != len(cols) {
			return fmt.Errorf("%q: tuple arity %d does not match %d columns", tvKey, len(vals), len(cols))
		}
		c.addTypeValues(entity, vals)

		subtree, ok := child[tvKey].(map[string]any)
		if !ok {
			return fmt.Errorf("%q: TYPEVALUES_ node must be an object", tvKey)
		}
		subPath := append(append([]string{}, path...), key, tvKey)
		if err := c.walk(subtree, entities, append(append([]TypeValues{}, tvs...), vals), nil, subPath); err != nil {
			return err
		}
	}
	return nil
}

func (c *CompiledSchema) walkAction(key string, value any, entities []string, tvs []TypeValues, actions []string, path []string) error {
	if len(entities) == 0 {
		return fmt.Errorf("%q: action outside an entity", key)
	}
	verb := strings.TrimPrefix(key, prefixAction)
	if verb == "" {
		return fmt.Errorf("%q: empty action name", key)
	}
	tvs = padTypeValues(entities, tvs)
	acts := append(append([]string{}, actions...), verb)
	leafPath := append(append([]string{}, path...), key)

	switch v := value.(type) {
	case string:
		if v != EffectAllow && v != EffectDeny {
			return fmt.Errorf("%q: leaf value %q", key, v)
		}
		return c.recordLeaf(entities, tvs, acts, leafPath)
	case map[string]any:
		// Non-leaf actions contain only further nested actions.
		for _, childKey := range sortedKeys(v) {
			if !strings.HasPrefix(childKey, prefixAction) {
				return fmt.Errorf("%q: non-action node %q nested under an action", key, childKey)
			}
		}
		return c.walk(v, entities, tvs, acts, leafPath)
	default:
		return fmt.Errorf("%q: action node must be a leaf string or an object", key)
	}
}

func (c *CompiledSchema) recordLeaf(entities []string, tvs []TypeValues, actions []string, path []string) error {
	tuple := ActionTuple(actions)
	lk := leafKey{
		entities:   chainKey(entities),
		typeValues: tvChainKey(tvs),
		actions:    tuple.Key(),
	}
	if _, ok := c.leafPaths[lk]; ok {
		return fmt.Errorf("duplicate leaf %s", strings.Join(path, "."))
	}
	c.leafPaths[lk] = path

	entity := entities[len(entities)-1]
	if c.validActions[entity] == nil {
		c.validActions[entity] = make(map[string]ActionTuple)
	}
	c.validActions[entity][tuple.Key()] = tuple

	tk := targetKey(entity, tuple)
	if c.pathEntities[tk] == nil {
		set := make(map[string]bool, len(entities))
		for _, e := range entities {
			set[e] = true
		}
		c.pathEntities[tk] = set
	}
	return nil
}

func (c *CompiledSchema) addTypeValues(entity string, vals TypeValues) {
	for _, existing := range c.typeValues[entity] {
		if existing.Key() == vals.Key() {
			return
		}
	}
	c.typeValues[entity] = append(c.typeValues[entity], vals)
}

// Scope returns the scope this schema was compiled for.
func (c *CompiledSchema) Scope() Scope {
	return c.scope
}

// LeafPath returns the raw schema key path for an (entity chain, type-value
// chain, action tuple) combination.
func (c *CompiledSchema) LeafPath(entities []string, tvs []TypeValues, action ActionTuple) ([]string, bool) {
	path, ok := c.leafPaths[leafKey{
		entities:   chainKey(entities),
		typeValues: tvChainKey(tvs),
		actions:    action.Key(),
	}]
	return path, ok
}

// TypeNames returns the ordered branching-type column names for an entity.
// Empty for entities without branching types.
func (c *CompiledSchema) TypeNames(entity string) []string {
	return c.typeNames[entity]
}

// TypeValuesFor returns the ordered type-value tuples declared under an
// entity.
func (c *CompiledSchema) TypeValuesFor(entity string) []TypeValues {
	return c.typeValues[entity]
}

// HasAction reports whether the action tuple is valid for the entity in this
// scope.
func (c *CompiledSchema) HasAction(entity string, action ActionTuple) bool {
	_, ok := c.validActions[entity][action.Key()]
	return ok
}

// PathEntities returns the entities that must arrive as path parameters for a
// (target entity, action tuple) pair.
func (c *CompiledSchema) PathEntities(entity string, action ActionTuple) map[string]bool {
	return c.pathEntities[targetKey(entity, action)]
}

// Chain returns the canonical entity chain from schema root to the entity.
func (c *CompiledSchema) Chain(entity string) ([]string, bool) {
	chain, ok := c.chains[entity]
	return chain, ok
}

// Leaves returns a copy of every leaf key path; used to verify compilation
// preserves the document's leaf set.
func (c *CompiledSchema) Leaves() [][]string {
	out := make([][]string, 0, len(c.leafPaths))
	for _, path := range c.leafPaths {
		out = append(out, append([]string{}, path...))
	}
	return out
}

func last(ss []string) string {
	if len(ss) == 0 {
		return ""
	}
	return ss[len(ss)-1]
}
