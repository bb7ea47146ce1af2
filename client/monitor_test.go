package client

import (
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func TestMonitorNotify(t *testing.T) {
	monitor := NewMonitor()

	notify := monitor.NotifyChannel()
	select {
	case <-notify:
		t.Fatal("notified without update")
	case <-time.After(10 * time.Millisecond):
	}

	monitor.NotifyAll()
	select {
	case <-notify:
	case <-time.After(1 * time.Second):
		t.Fatal("missed update")
	}

	// the next channel is armed for the next update
	notify = monitor.NotifyChannel()
	monitor.NotifyAll()
	select {
	case <-notify:
	case <-time.After(1 * time.Second):
		t.Fatal("missed second update")
	}
}

func TestCallbackListAddRemove(t *testing.T) {
	callbacks := NewCallbackList[func()]()

	removeA := callbacks.Add(func() {})
	removeB := callbacks.Add(func() {})
	assert.Equal(t, 2, callbacks.Len())
	assert.Equal(t, 2, len(callbacks.Get()))

	removeA()
	assert.Equal(t, 1, callbacks.Len())

	// remove is idempotent
	removeA()
	assert.Equal(t, 1, callbacks.Len())

	removeB()
	assert.Equal(t, 0, callbacks.Len())
}
