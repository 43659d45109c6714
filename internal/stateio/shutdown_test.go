package stateio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownEvent_InitiallyUnset(t *testing.T) {
	e := NewShutdownEvent()
	assert.False(t, e.IsSet())
}

func TestShutdownEvent_SetMarksIsSetAndClosesDone(t *testing.T) {
	e := NewShutdownEvent()
	e.Set()
	assert.True(t, e.IsSet())
	select {
	case <-e.Done():
	default:
		t.Fatal("Done channel should be closed after Set")
	}
}

func TestShutdownEvent_SetIsIdempotent(t *testing.T) {
	e := NewShutdownEvent()
	assert.NotPanics(t, func() {
		e.Set()
		e.Set()
	})
}

func TestShutdownEvent_SetIsSafeFromConcurrentCallers(t *testing.T) {
	e := NewShutdownEvent()
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			e.Set()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("concurrent Set calls did not return")
		}
	}
	assert.True(t, e.IsSet())
}
