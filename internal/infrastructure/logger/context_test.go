package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext(t *testing.T) {
	logger := zap.NewNop()

	ctx := WithContext(context.Background(), logger)

	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContext_NotFound(t *testing.T) {
	// Should return a no-op logger rather than nil
	logger := FromContext(context.Background())
	assert.NotNil(t, logger)
}

func TestWithRequestID(t *testing.T) {
	ctx, enriched := WithRequestID(context.Background(), zap.NewNop(), "req-123")

	assert.NotNil(t, enriched)
	assert.Equal(t, "req-123", GetRequestID(ctx))
}

func TestWithLandlordID(t *testing.T) {
	ctx, enriched := WithLandlordID(context.Background(), zap.NewNop(), "landlord-456")

	assert.NotNil(t, enriched)
	assert.Equal(t, "landlord-456", GetLandlordID(ctx))
}

func TestWithUserID(t *testing.T) {
	ctx, enriched := WithUserID(context.Background(), zap.NewNop(), "user-789")

	assert.NotNil(t, enriched)
	assert.Equal(t, "user-789", GetUserID(ctx))
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetLandlordID(ctx))
	assert.Empty(t, GetUserID(ctx))
}

func TestL_EnrichesFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := WithContext(context.Background(), base)
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, LandlordIDKey, "landlord-1")

	L(ctx).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)

	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "landlord-1", fields["landlord_id"])
	_, hasUser := fields["user_id"]
	assert.False(t, hasUser)
}

func TestL_NoLoggerInContext(t *testing.T) {
	// Must not panic when the context carries no logger
	assert.NotPanics(t, func() {
		L(context.Background()).Info("ignored")
	})
}
