package authz

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevaite/api/internal/db"
)

func listRequest(p Principal, entity string) Request {
	return Request{
		Principal: p,
		Params: map[string]string{
			"account_id": "acc-1",
			"project_id": "proj-1",
		},
		TargetEntity: entity,
		TargetAction: ActionRead,
	}
}

func TestListFilterExcludesDeniedTypes(t *testing.T) {
	mock := baseMock()
	memberOf(mock, false, false, nil)
	mock.HasRoleAllowFunc = func(ctx context.Context, arg db.HasRoleAllowParams) (bool, error) {
		return !strings.Contains(arg.Path, "TYPEVALUES_preprocess"), nil
	}
	engine := testEngine(t, mock)

	info, err := engine.Validate(context.Background(), listRequest(member, "Application"))
	require.NoError(t, err)

	filter, err := engine.ListFilter(context.Background(), info, "Application")
	require.NoError(t, err)
	assert.Equal(t, "NOT (application_type = ?)", filter.Expr)
	assert.Equal(t, []any{"preprocess"}, filter.Args)
}

func TestListFilterEmptyWhenAllTypesAllowed(t *testing.T) {
	mock := baseMock()
	memberOf(mock, false, false, nil)
	mock.HasRoleAllowFunc = func(ctx context.Context, arg db.HasRoleAllowParams) (bool, error) {
		return true, nil
	}
	engine := testEngine(t, mock)

	info, err := engine.Validate(context.Background(), listRequest(member, "Application"))
	require.NoError(t, err)

	filter, err := engine.ListFilter(context.Background(), info, "Application")
	require.NoError(t, err)
	assert.Empty(t, filter.Expr)
	assert.Empty(t, filter.Args)
}

func TestListFilterEmptyForAdmins(t *testing.T) {
	mock := baseMock()
	memberOf(mock, true, false, nil)
	engine := testEngine(t, mock)

	info, err := engine.Validate(context.Background(), listRequest(member, "Application"))
	require.NoError(t, err)

	filter, err := engine.ListFilter(context.Background(), info, "Application")
	require.NoError(t, err)
	assert.Empty(t, filter.Expr)
}

func TestListFilterEmptyForUntypedEntity(t *testing.T) {
	mock := baseMock()
	memberOf(mock, false, false, nil)
	mock.HasRoleAllowFunc = func(ctx context.Context, arg db.HasRoleAllowParams) (bool, error) {
		return true, nil
	}
	engine := testEngine(t, mock)

	info, err := engine.Validate(context.Background(), listRequest(member, "Dataset"))
	require.NoError(t, err)

	filter, err := engine.ListFilter(context.Background(), info, "Dataset")
	require.NoError(t, err)
	assert.Empty(t, filter.Expr)
	assert.Empty(t, filter.Args)
}

// A run pinned to a concrete application records no per-type outcomes, so
// the filter evaluates the tuples on demand.
func TestListFilterEvaluatesTuplesOnDemand(t *testing.T) {
	mock := baseMock()
	memberOf(mock, false, false, nil)
	mock.HasRoleAllowFunc = func(ctx context.Context, arg db.HasRoleAllowParams) (bool, error) {
		return !strings.Contains(arg.Path, "TYPEVALUES_preprocess"), nil
	}
	engine := testEngine(t, mock)

	info, err := engine.Validate(context.Background(), Request{
		Principal: member,
		Params: map[string]string{
			"account_id":     "acc-1",
			"project_id":     "proj-1",
			"application_id": "42",
		},
		TargetEntity: "Application",
		TargetAction: ActionRead,
	})
	require.NoError(t, err)
	assert.Empty(t, info.TypeResults["Application"])

	filter, err := engine.ListFilter(context.Background(), info, "Application")
	require.NoError(t, err)
	assert.Equal(t, "NOT (application_type = ?)", filter.Expr)
	assert.Equal(t, []any{"preprocess"}, filter.Args)
}
