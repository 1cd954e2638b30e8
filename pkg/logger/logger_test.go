package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoWritesKeyValues(t *testing.T) {
	Init("production", false)
	var buf bytes.Buffer
	SetOutput(&buf)

	Info("key registered", "address", "f1abc", "type", "secp256k1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "key registered", entry["message"])
	assert.Equal(t, "f1abc", entry["address"])
	assert.Equal(t, "secp256k1", entry["type"])
}

func TestErrorIncludesErr(t *testing.T) {
	Init("production", false)
	var buf bytes.Buffer
	SetOutput(&buf)

	Error("write failed", errors.New("disk full"), "path", "/tmp/x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "disk full", entry["error"])
	assert.Equal(t, "/tmp/x", entry["path"])
}

func TestDebugSuppressedUnlessEnabled(t *testing.T) {
	Init("production", false)
	var buf bytes.Buffer
	SetOutput(&buf)
	Debug("hidden")
	assert.Empty(t, buf.String())

	Init("production", true)
	SetOutput(&buf)
	Debug("shown", "odd")
	assert.Contains(t, buf.String(), "shown")
}
