package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextValues(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, "admin")
	ctx = WithWallet(ctx, "Wallet111")

	assert.Equal(t, "trace-1", GetTraceID(ctx))
	assert.Equal(t, "admin", GetUserID(ctx))
	assert.Equal(t, "Wallet111", GetWallet(ctx))
	assert.Empty(t, GetRole(ctx))
}

func TestWithContextFields(t *testing.T) {
	logger := New("oracle", "debug", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	ctx := WithTraceID(context.Background(), "abc")
	logger.LogRequest(ctx, "POST", "/judge-wish", 200, 15*time.Millisecond)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "oracle", entry["service"])
	assert.Equal(t, "abc", entry["trace_id"])
	assert.Equal(t, "/judge-wish", entry["path"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogSecurityEvent(t *testing.T) {
	logger := New("oracle", "info", "json")
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	logger.LogSecurityEvent(context.Background(), "rate_limit_exceeded", map[string]interface{}{"key": "1.2.3.4"})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "rate_limit_exceeded", entry["security_event"])
	assert.Equal(t, "warning", entry["level"])
}

func TestNewTraceIDUnique(t *testing.T) {
	assert.NotEqual(t, NewTraceID(), NewTraceID())
}
