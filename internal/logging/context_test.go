package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logRecord(t *testing.T, ctx context.Context) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))
	logger.InfoContext(ctx, "checked")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestContextHandlerAddsIdentityAttrs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithActor(ctx, "user-1", "user")
	ctx = WithTenant(ctx, "acc-1", "proj-1")

	record := logRecord(t, ctx)
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "user-1", record["actor_id"])
	assert.Equal(t, "user", record["actor_type"])
	assert.Equal(t, "acc-1", record["account_id"])
	assert.Equal(t, "proj-1", record["project_id"])
}

func TestContextHandlerSkipsAbsentAttrs(t *testing.T) {
	ctx := WithTenant(context.Background(), "acc-1", "")

	record := logRecord(t, ctx)
	assert.Equal(t, "acc-1", record["account_id"])
	assert.NotContains(t, record, "project_id")
	assert.NotContains(t, record, "actor_id")
}

func TestGetRequestID(t *testing.T) {
	_, ok := GetRequestID(context.Background())
	assert.False(t, ok)

	id, ok := GetRequestID(WithRequestID(context.Background(), "req-2"))
	assert.True(t, ok)
	assert.Equal(t, "req-2", id)
}
