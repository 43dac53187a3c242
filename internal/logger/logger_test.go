package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsAndHashes(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar(), hashSalt: "pepper"}

	l.Info("call", "api_key", "k3y", "Authorization", "Bearer x", "user", "user-1", "course", "12")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "[REDACTED]", fields["api_key"])
		assert.Equal(t, "[REDACTED]", fields["Authorization"])
		assert.Equal(t, "12", fields["course"])
		assert.NotEqual(t, "user-1", fields["user"])
		assert.Equal(t, l.hash("user-1"), fields["user"])
	}
}

func TestWithKeepsSalt(t *testing.T) {
	l := &Logger{SugaredLogger: zap.NewNop().Sugar(), hashSalt: "pepper"}
	child := l.With("service", "x")
	assert.Equal(t, l.hash("a"), child.hash("a"))
	assert.NotEqual(t, Nop().hash("a"), l.hash("a"))
}
