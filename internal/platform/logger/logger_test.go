package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsCredentials(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar()}

	l.Info("calling provider",
		"api_key", "sk-live-123",
		"Authorization", "Bearer abc",
		"model", "o3-mini",
		"input_tokens", 42,
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "o3-mini", fields["model"])
	assert.EqualValues(t, 42, fields["input_tokens"])
}

func TestSanitizeNestedMapAndOddArgs(t *testing.T) {
	out := sanitizeKVs([]interface{}{"cfg", map[string]interface{}{"credential": "x", "model": "m"}, "dangling"})
	require.Len(t, out, 3)
	nested := out[1].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", nested["credential"])
	assert.Equal(t, "m", nested["model"])
	assert.Equal(t, "dangling", out[2])
}

func TestEmptySecretStaysEmpty(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", ""})
	assert.Equal(t, "", out[1])
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil).SugaredLogger)
	l := Nop()
	assert.Same(t, l, OrNop(l))
}
