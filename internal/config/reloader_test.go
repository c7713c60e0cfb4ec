package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevaite/api/internal/authz"
)

func writeSchemaDir(t *testing.T, accountDoc string) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"account_scope.json": accountDoc,
		"project_scope.json": `{"ENTITY_Dataset": {"ACTION_READ": "Allow"}}`,
		"apikey_scope.json":  `{"ENTITY_Dataset": {"ACTION_READ": "Allow"}}`,
	}
	for name, doc := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o644))
	}
	return dir
}

func TestLoadSchemas(t *testing.T) {
	dir := writeSchemaDir(t,
		`{"ENTITY_Project": {"ACTION_READ": "Allow", "ENTITY_Dataset": {"ACTION_READ": "Allow"}}}`)

	reloader, err := NewSchemaReloader(dir)
	require.NoError(t, err)
	defer reloader.Stop()

	set, err := reloader.LoadSchemas()
	require.NoError(t, err)
	assert.True(t, set.Account.HasAction("Dataset", authz.Action("READ")))
	assert.True(t, set.Project.HasAction("Dataset", authz.Action("READ")))
	assert.True(t, set.APIKey.HasAction("Dataset", authz.Action("READ")))
}

func TestLoadSchemasCompileFailure(t *testing.T) {
	dir := writeSchemaDir(t, `{"ACTION_READ": "Allow"}`)

	reloader, err := NewSchemaReloader(dir)
	require.NoError(t, err)
	defer reloader.Stop()

	_, err = reloader.LoadSchemas()
	assert.Error(t, err)
}

func TestReloadNotifiesCallbacks(t *testing.T) {
	dir := writeSchemaDir(t,
		`{"ENTITY_Project": {"ACTION_READ": "Allow", "ENTITY_Dataset": {"ACTION_READ": "Allow"}}}`)

	reloader, err := NewSchemaReloader(dir)
	require.NoError(t, err)
	defer reloader.Stop()

	var got *authz.SchemaSet
	var failures []error
	reloader.OnSchemaChange(func(set *authz.SchemaSet) { got = set })
	reloader.OnReloadFailure(func(err error) { failures = append(failures, err) })

	reloader.reload()
	require.NotNil(t, got)
	assert.True(t, got.Account.HasAction("Dataset", authz.Action("READ")))
	assert.Empty(t, failures)

	// Break one scope document; the failure callback fires and the change
	// callback keeps its previous set.
	got = nil
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "account_scope.json"), []byte(`{"ACTION_READ"`), 0o644))

	reloader.reload()
	assert.Nil(t, got)
	require.Len(t, failures, 1)
	assert.ErrorContains(t, failures[0], "schema account")
}

func TestLoadSchemasMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "account_scope.json"), []byte(`{}`), 0o644))

	reloader, err := NewSchemaReloader(dir)
	require.NoError(t, err)
	defer reloader.Stop()

	_, err = reloader.LoadSchemas()
	assert.ErrorContains(t, err, "project scope")
}
