package authz

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevaite/api/internal/db"
)

func TestNormalizeParam(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"project_id", "project_id"},
		{"projectId", "project_id"},
		{"applicationType", "application_type"},
		{"apikey_id", "apikey_id"},
		{"parentProjectId", "parent_project_id"},
		{"id", "id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeParam(tt.in), tt.in)
	}
}

func TestBuildIDMap(t *testing.T) {
	ids, err := BuildIDMap(map[string]string{
		"account_id":        "acc-1",
		"projectId":         "proj-1",
		"application_id":    "42",
		"dataset_id":        "ds-1",
		"parent_project_id": "proj-0",
		"page":              "2",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Account":     "acc-1",
		"Project":     "proj-1",
		"Application": "42",
		"Dataset":     "ds-1",
	}, ids)
}

func TestBuildIDMapRejectsUnknownParameter(t *testing.T) {
	_, err := BuildIDMap(map[string]string{"widget_id": "w-1"})
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestLoadInstancesSkipsAndLoads(t *testing.T) {
	r := NewResolver(baseMock())

	instances, err := r.LoadInstances(context.Background(),
		map[string]string{"Project": "proj-1", "Dataset": "ds-1"},
		map[string]bool{"Project": true},
	)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	ds := instances["Dataset"].(db.Dataset)
	assert.Equal(t, "ds-1", ds.ID)
}

func TestLoadInstancesNotFound(t *testing.T) {
	r := NewResolver(baseMock())
	_, err := r.LoadInstances(context.Background(),
		map[string]string{"Dataset": "ds-missing"}, nil)
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Contains(t, Detail(err), "ds-missing")
}

func TestLoadInstancesStoreFailure(t *testing.T) {
	mock := baseMock()
	mock.GetDatasetFunc = func(ctx context.Context, id string) (db.Dataset, error) {
		return db.Dataset{}, sql.ErrConnDone
	}
	r := NewResolver(mock)

	_, err := r.LoadInstances(context.Background(),
		map[string]string{"Dataset": "ds-1"}, nil)
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.Equal(t, "loading Dataset 'ds-1'", Detail(err))
}

func TestDeriveAccount(t *testing.T) {
	r := NewResolver(baseMock())
	proj := &db.Project{ID: "proj-1", AccountID: "acc-1"}

	account, err := r.DeriveAccount(context.Background(), "", proj)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)

	account, err = r.DeriveAccount(context.Background(), "acc-1", proj)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", account.ID)

	_, err = r.DeriveAccount(context.Background(), "acc-2", proj)
	assert.Equal(t, KindMismatch, KindOf(err))

	_, err = r.DeriveAccount(context.Background(), "", nil)
	assert.Equal(t, KindMismatch, KindOf(err))

	_, err = r.DeriveAccount(context.Background(), "acc-missing", nil)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestValidateAssociations(t *testing.T) {
	params := map[string]string{
		"account_id": "acc-1",
		"project_id": "proj-1",
		"dataset_id": "ds-1",
	}
	instances := map[string]any{
		"Dataset": db.Dataset{ID: "ds-1", ProjectID: "proj-1"},
		"Project": db.Project{ID: "proj-1", AccountID: "acc-1"},
	}
	assert.NoError(t, ValidateAssociations(params, instances))

	instances["Dataset"] = db.Dataset{ID: "ds-1", ProjectID: "proj-2"}
	err := ValidateAssociations(params, instances)
	assert.Equal(t, KindMismatch, KindOf(err))
	assert.Contains(t, Detail(err), "proj-2")
}

// References absent from the request are not checked; the dataset's project
// only has to agree with a project the caller actually named.
func TestValidateAssociationsIgnoresUnsuppliedRefs(t *testing.T) {
	params := map[string]string{"dataset_id": "ds-1"}
	instances := map[string]any{
		"Dataset": db.Dataset{ID: "ds-1", ProjectID: "proj-2"},
	}
	assert.NoError(t, ValidateAssociations(params, instances))
}

func TestValidateAssociationsOptionalParent(t *testing.T) {
	params := map[string]string{
		"project_id":        "proj-child",
		"parent_project_id": "proj-1",
	}
	instances := map[string]any{
		"Project": db.Project{
			ID: "proj-child", AccountID: "acc-1",
			ParentProjectID: sql.NullString{String: "proj-1", Valid: true},
		},
	}
	assert.NoError(t, ValidateAssociations(params, instances))

	params["parent_project_id"] = "proj-other"
	err := ValidateAssociations(params, instances)
	assert.Equal(t, KindMismatch, KindOf(err))
}
