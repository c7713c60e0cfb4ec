package authz

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustCompileDefaults(t *testing.T) *SchemaSet {
	t.Helper()
	set, err := DefaultSchemas()
	require.NoError(t, err)
	return set
}

// TestCompileChains verifies every entity lands at one canonical position.
func TestCompileChains(t *testing.T) {
	set := mustCompileDefaults(t)

	tests := []struct {
		entity string
		chain  []string
	}{
		{"Project", []string{"Project"}},
		{"Application", []string{"Project", "Application"}},
		{"Configuration", []string{"Project", "Application", "Configuration"}},
		{"Instance", []string{"Project", "Application", "Configuration", "Instance"}},
		{"Dataset", []string{"Project", "Dataset"}},
		{"Collection", []string{"Project", "Collection"}},
		{"ApiKey", []string{"Project", "ApiKey"}},
	}
	for _, tt := range tests {
		chain, ok := set.Account.Chain(tt.entity)
		require.True(t, ok, tt.entity)
		assert.Equal(t, tt.chain, chain)
	}

	// The project scope is rooted below Project.
	chain, ok := set.Project.Chain("Application")
	require.True(t, ok)
	assert.Equal(t, []string{"Application"}, chain)

	_, ok = set.Project.Chain("Project")
	assert.False(t, ok)
}

func TestCompileTypeTables(t *testing.T) {
	set := mustCompileDefaults(t)

	assert.Equal(t, []string{"applicationType"}, set.Account.TypeNames("Application"))
	assert.Nil(t, set.Account.TypeNames("Dataset"))

	tvs := set.Account.TypeValuesFor("Application")
	require.Len(t, tvs, 2)
	assert.Equal(t, "ingest", tvs[0].Key())
	assert.Equal(t, "preprocess", tvs[1].Key())
}

func TestCompileValidActions(t *testing.T) {
	set := mustCompileDefaults(t)

	assert.True(t, set.Account.HasAction("Application", Action("READ")))
	assert.True(t, set.Account.HasAction("Application", Action("SERVICENOW", "TICKET", "INGEST")))
	assert.True(t, set.Account.HasAction("Instance", Action("START")))
	assert.True(t, set.Account.HasAction("Dataset", Action("UPLOAD")))
	assert.True(t, set.Account.HasAction("Project", Action("TAG")))
	assert.False(t, set.Account.HasAction("Dataset", Action("START")))
	assert.False(t, set.Account.HasAction("Project", Action("UPLOAD")))

	// Keys are read-only in the api key scope.
	assert.True(t, set.APIKey.HasAction("ApiKey", Action("READ")))
	assert.False(t, set.APIKey.HasAction("ApiKey", Action("CREATE")))
}

func TestCompileLeafPaths(t *testing.T) {
	set := mustCompileDefaults(t)

	path, ok := set.Account.LeafPath(
		[]string{"Project", "Application"},
		[]TypeValues{{}, {"ingest"}},
		Action("READ"),
	)
	require.True(t, ok)
	assert.Equal(t, []string{
		"ENTITY_Project", "ENTITY_Application",
		"TYPENAMES_applicationType", "TYPEVALUES_ingest",
		"ACTION_READ",
	}, path)

	path, ok = set.Account.LeafPath(
		[]string{"Project", "Application", "Configuration", "Instance"},
		[]TypeValues{{}, {"preprocess"}, {}, {}},
		Action("STOP"),
	)
	require.True(t, ok)
	assert.Equal(t, "ACTION_STOP", path[len(path)-1])

	// The ticket ingestion chain only exists for ingest applications.
	_, ok = set.Account.LeafPath(
		[]string{"Project", "Application"},
		[]TypeValues{{}, {"ingest"}},
		Action("SERVICENOW", "TICKET", "INGEST"),
	)
	assert.True(t, ok)
	_, ok = set.Account.LeafPath(
		[]string{"Project", "Application"},
		[]TypeValues{{}, {"preprocess"}},
		Action("SERVICENOW", "TICKET", "INGEST"),
	)
	assert.False(t, ok)
}

func TestCompilePathEntities(t *testing.T) {
	set := mustCompileDefaults(t)

	required := set.Account.PathEntities("Instance", Action("READ"))
	assert.Equal(t, map[string]bool{
		"Project": true, "Application": true, "Configuration": true, "Instance": true,
	}, required)

	required = set.Account.PathEntities("Dataset", Action("UPLOAD"))
	assert.Equal(t, map[string]bool{"Project": true, "Dataset": true}, required)
}

// TestCompileRoundTrip rebuilds a document from the compiled leaves and
// compiles it again; the leaf sets must agree.
func TestCompileRoundTrip(t *testing.T) {
	set := mustCompileDefaults(t)

	root := make(map[string]any)
	for _, path := range set.Account.Leaves() {
		node := root
		for _, key := range path[:len(path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[key] = child
			}
			node = child
		}
		node[path[len(path)-1]] = EffectAllow
	}
	doc, err := json.Marshal(root)
	require.NoError(t, err)

	recompiled, err := Compile(ScopeAccount, doc)
	require.NoError(t, err)
	assert.Equal(t, leafSet(set.Account), leafSet(recompiled))
}

func leafSet(c *CompiledSchema) []string {
	leaves := c.Leaves()
	out := make([]string, len(leaves))
	for i, path := range leaves {
		out[i] = strings.Join(path, ".")
	}
	sort.Strings(out)
	return out
}

func TestCompileRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{`},
		{"unknown key", `{"FOO": {}}`},
		{"action at root", `{"ACTION_READ": "Allow"}`},
		{"underscored entity name", `{"ENTITY_Api_Key": {"ACTION_READ": "Allow"}}`},
		{"bad leaf value", `{"ENTITY_Dataset": {"ACTION_READ": "Maybe"}}`},
		{"non-object entity", `{"ENTITY_Dataset": "Allow"}`},
		{"typevalues outside typenames", `{"ENTITY_Dataset": {"TYPEVALUES_x": {}}}`},
		{
			"typenames with siblings",
			`{"ENTITY_Application": {"TYPENAMES_kind": {"TYPEVALUES_a": {"ACTION_READ": "Allow"}}, "ACTION_READ": "Allow"}}`,
		},
		{
			"tuple arity mismatch",
			`{"ENTITY_Application": {"TYPENAMES_kind__tier": {"TYPEVALUES_a": {"ACTION_READ": "Allow"}}}}`,
		},
		{
			"entity at two positions",
			`{"ENTITY_Alpha": {"ENTITY_Beta": {"ACTION_READ": "Allow"}}, "ENTITY_Beta": {"ACTION_READ": "Allow"}}`,
		},
		{
			"entity under action",
			`{"ENTITY_Dataset": {"ACTION_MANAGE": {"ENTITY_Collection": {"ACTION_READ": "Allow"}}}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(ScopeAccount, []byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
