package goroutine

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/crm-backend/internal/logger"
)

func TestSafeGo_RecoversPanic(t *testing.T) {
	log, hook := test.NewNullLogger()
	rh := NewRecoveryHandler(log)

	done := make(chan struct{})
	rh.SafeGo("panicky", func() {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("горутина не завершилась")
	}

	require.Eventually(t, func() bool { return len(hook.AllEntries()) == 1 }, time.Second, 10*time.Millisecond)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "panicky", entry.Data["goroutine"])
	assert.Equal(t, "boom", entry.Data["panic"])
}

func TestSafeGoWithContext_PassesContext(t *testing.T) {
	log, _ := test.NewNullLogger()
	rh := NewRecoveryHandler(log)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "value")
	got := make(chan interface{}, 1)
	rh.SafeGoWithContext(ctx, "ctx", func(ctx context.Context) {
		got <- ctx.Value(key{})
	})

	select {
	case v := <-got:
		assert.Equal(t, "value", v)
	case <-time.After(time.Second):
		t.Fatal("горутина не запустилась")
	}
}

func TestDefaultRecoveryHandler_UsesCurrentLogger(t *testing.T) {
	prev := logger.Log
	t.Cleanup(func() { logger.Log = prev })
	log, hook := test.NewNullLogger()
	logger.Log = log

	func() {
		defer DefaultRecoveryHandler.Recover("inline")
		panic("late")
	}()

	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, "inline", hook.LastEntry().Data["goroutine"])
}
