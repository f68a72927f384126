package logsvc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/findclassnz/findclass/core/user"
)

func TestRollbarLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := &RollbarLogger{zl: zap.New(core)}
	logger.Enable(false)

	usr := user.User{ID: "u1", Name: "Mere", Email: "mere@findclass.nz"}
	logger.Error("saving course", errors.New("boom"), map[string]interface{}{"course_id": "c1"}, usr, 42)
	logger.Info("started")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "saving course", entries[0].Message)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, "c1", ctx["course_id"])
	assert.Equal(t, "u1", ctx["user_id"])
	assert.Equal(t, int64(42), ctx["arg"])
	assert.Equal(t, "started", entries[1].Message)
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := NewNopLogger()
	usr := user.User{ID: "u1", Name: "Mere", Email: "mere@findclass.nz"}
	err := errors.New("boom")

	args := logger.prepare("msg", []interface{}{usr, err, user.User{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", err}, args, "users are not sent as extras")
}
