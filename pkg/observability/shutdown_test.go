package observability

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownManager_RunsFunctions(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second, &http.Server{Addr: "127.0.0.1:0"})

	var calls atomic.Int32
	sm.RegisterShutdownFunc(func(context.Context) error { calls.Add(1); return nil })
	sm.RegisterShutdownFunc(func(context.Context) error { calls.Add(1); return nil })

	assert.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(2), calls.Load())
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)
	sm.RegisterShutdownFunc(func(context.Context) error { return errors.New("close db") })

	err := sm.Shutdown()
	assert.ErrorContains(t, err, "close db")
}

func TestShutdownManager_Timeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), 20*time.Millisecond)
	sm.RegisterShutdownFunc(func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})

	assert.Error(t, sm.Shutdown())
}

func TestShutdownManager_WaitForShutdown_ContextCancel(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, &bytes.Buffer{}), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, sm.WaitForShutdown(ctx))
}

func TestRecoverPanic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	func() {
		defer RecoverPanic(logger, "test")
		panic("kaboom")
	}()
	assert.Contains(t, buf.String(), "kaboom")

	called := false
	func() {
		defer RecoverPanicWithCallback(logger, "test", func() { called = true })
		panic("again")
	}()
	assert.True(t, called)
}
