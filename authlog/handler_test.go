package authlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHumanHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, nil))

	logger.Info("sign-in started", "redirect", "app://auth/callback")

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "sign-in started")
	assert.Contains(t, out, "redirect=app://auth/callback")
}

func TestHumanHandler_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Info("hidden")
	logger.Warn("visible")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestHumanHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, nil)).With("component", "flow")

	logger.Info("callback received")

	assert.Contains(t, buf.String(), "component=flow")
}

func TestHumanHandler_QuotesSpacedValues(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, nil))

	logger.Error("exchange failed", "provider_error", "invalid grant supplied")

	assert.Contains(t, buf.String(), `provider_error="invalid grant supplied"`)
}

func TestRedaction_HumanHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHumanHandler(&buf, nil))

	token := "eyJhbGciOiJSUzI1NiJ9.super-secret-payload.sig"
	logger.Info("session established", "access_token", token)

	out := buf.String()
	assert.NotContains(t, out, "super-secret-payload")
	assert.Contains(t, out, "redacted")
}

func TestRedaction_MachineHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := Machine(&buf, slog.LevelInfo)

	logger.Info("exchange done", "id_token", "eyJhbGciOiJSUzI1NiJ9.claims.sig", "status", "ok")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec["id_token"], "claims")
	assert.Equal(t, "ok", rec["status"])
}

func TestRedaction_LeavesNonSecretsAlone(t *testing.T) {
	a := redactAttr(slog.String("account", "acct-42"))
	assert.Equal(t, "acct-42", a.Value.String())

	a = redactAttr(slog.Int("retry", 3))
	assert.Equal(t, int64(3), a.Value.Int64())
}

func TestHumanHandler_Enabled(t *testing.T) {
	h := NewHumanHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelDebug})
	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))

	h = NewHumanHandler(&bytes.Buffer{}, nil)
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
}
