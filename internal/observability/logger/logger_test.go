package logger

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hera/internal/orgcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsScopeFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := orgcontext.WithScope(context.Background(), snowflake.ID(10), snowflake.ID(20))
	ctx = orgcontext.WithRequestID(ctx, "req-1")

	WithContext(ctx, zap.New(core)).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "10", fields["organization_id"])
	assert.Equal(t, "20", fields["actor_user_id"])
	assert.NotContains(t, fields, "trace_id")
}

func TestWithContextWithoutScope(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("bare")

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].ContextMap())
}

func TestNormalizeFormat(t *testing.T) {
	assert.Equal(t, "console", normalizeFormat(" Console "))
	assert.Equal(t, "json", normalizeFormat("yaml"))
}
