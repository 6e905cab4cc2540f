package flock

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "LOCK")

	l, err := Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// Released locks can be reacquired.
	l, err = Acquire(path)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	// Double release is harmless.
	assert.NoError(t, l.Release())
}

func TestAcquireSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "LOCK")

	l, err := Acquire(path)
	require.NoError(t, err)

	acquired := make(chan *Lock)
	go func() {
		other, err := Acquire(path)
		assert.NoError(t, err)
		acquired <- other
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, l.Release())

	other := <-acquired
	require.NoError(t, other.Release())
}
