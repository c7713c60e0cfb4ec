package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*Queries, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return New(conn), mock
}

func TestGetProject(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT id, account_id, parent_project_id, name, creator_user_email\s+FROM projects WHERE id = \?`).
		WithArgs("proj-child").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "account_id", "parent_project_id", "name", "creator_user_email"},
		).AddRow("proj-child", "acc-1", "proj-1", "alpha-child", "user@acme.test"))

	p, err := q.GetProject(context.Background(), "proj-child")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", p.AccountID)
	assert.Equal(t, sql.NullString{String: "proj-1", Valid: true}, p.ParentProjectID)
}

func TestGetProjectNullParent(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`FROM projects WHERE id = \?`).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "account_id", "parent_project_id", "name", "creator_user_email"},
		).AddRow("proj-1", "acc-1", nil, "alpha", "user@acme.test"))

	p, err := q.GetProject(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.False(t, p.ParentProjectID.Valid)
}

func TestHasRoleAllow(t *testing.T) {
	q, mock := newMockDB(t)

	path := `$."ENTITY_Project"."ENTITY_Dataset"."ACTION_READ"`
	mock.ExpectQuery(`SELECT EXISTS \(\s+SELECT 1\s+FROM role_user_accounts rua\s+INNER JOIN roles r ON r\.id = rua\.role_id`).
		WithArgs("user-1", "acc-1", path).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	allowed, err := q.HasRoleAllow(context.Background(), HasRoleAllowParams{
		UserID:    "user-1",
		AccountID: "acc-1",
		Path:      path,
	})
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestIsUserAssociatedUpToRoot(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`WITH RECURSIVE ancestry AS`).
		WithArgs("proj-child", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"associated"}).AddRow(false))

	associated, err := q.IsUserAssociatedUpToRoot(context.Background(), IsUserAssociatedUpToRootParams{
		ProjectID: "proj-child",
		UserID:    "user-1",
	})
	require.NoError(t, err)
	assert.False(t, associated)
}

func TestListProjectApplications(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`FROM applications WHERE project_id = \?\s+ORDER BY id`).
		WithArgs("proj-1").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "project_id", "name", "application_type"},
		).AddRow(1, "proj-1", "ingester", "ingest").AddRow(2, "proj-1", "cleaner", "preprocess"))

	apps, err := q.ListProjectApplications(context.Background(), ListProjectApplicationsParams{
		ProjectID: "proj-1",
	})
	require.NoError(t, err)
	require.Len(t, apps, 2)
	assert.Equal(t, int64(1), apps[0].ID)
	assert.Equal(t, "preprocess", apps[1].ApplicationType)
}

func TestListProjectApplicationsWithFilter(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`FROM applications WHERE project_id = \?\s+AND \(NOT \(application_type = \?\)\) ORDER BY id`).
		WithArgs("proj-1", "preprocess").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "project_id", "name", "application_type"},
		).AddRow(1, "proj-1", "ingester", "ingest"))

	apps, err := q.ListProjectApplications(context.Background(), ListProjectApplicationsParams{
		ProjectID: "proj-1",
		Filter:    Filter{Expr: "NOT (application_type = ?)", Args: []any{"preprocess"}},
	})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "ingest", apps[0].ApplicationType)
}

func TestListProjectDatasetsEmpty(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectQuery(`FROM datasets WHERE project_id = \?\s+ORDER BY id`).
		WithArgs("proj-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "project_id", "name"}))

	datasets, err := q.ListProjectDatasets(context.Background(), ListProjectDatasetsParams{
		ProjectID: "proj-2",
	})
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestCreateAuditEvent(t *testing.T) {
	q, mock := newMockDB(t)

	mock.ExpectExec(`INSERT INTO audit_events \(actor_id, actor_type, entity_type, event, detail\)`).
		WithArgs("user-1", "user", "datasets", "authorization.allow", []byte(`{"entity":"Dataset"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := q.CreateAuditEvent(context.Background(), CreateAuditEventParams{
		ActorID:    "user-1",
		ActorType:  "user",
		EntityType: "datasets",
		Event:      "authorization.allow",
		Detail:     []byte(`{"entity":"Dataset"}`),
	})
	require.NoError(t, err)
}
