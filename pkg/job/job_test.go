// SPDX-License-Identifier: BSD-3-Clause

package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForState(t *testing.T, m *Manager, id string, want State) Status {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := m.Status(id)
		require.NoError(t, err)
		if st.State == want {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("job %s never reached state %s", id, want)
	return Status{}
}

func TestManager_CreateAndFinishSuccessfully(t *testing.T) {
	m := NewManager()
	id := m.Create(context.Background(), func(ctx context.Context, progress Progress) (any, error) {
		progress(50, "halfway")
		return "result-value", nil
	})

	st := waitForState(t, m, id, StateDone)
	assert.Equal(t, 100, st.Progress)
}

func TestManager_FuncError(t *testing.T) {
	m := NewManager()
	id := m.Create(context.Background(), func(ctx context.Context, progress Progress) (any, error) {
		return nil, errors.New("boom")
	})

	st := waitForState(t, m, id, StateError)
	assert.Equal(t, "boom", st.Error)
}

func TestManager_Cancel(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	id := m.Create(context.Background(), func(ctx context.Context, progress Progress) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	<-started
	require.NoError(t, m.Cancel(id))

	st, err := m.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, "canceled", st.Error)

	err = m.Cancel(id)
	assert.ErrorIs(t, err, ErrNotCancelable)
}

func TestManager_Commit(t *testing.T) {
	m := NewManager()
	id := m.Create(context.Background(), func(ctx context.Context, progress Progress) (any, error) {
		return 42, nil
	})
	waitForState(t, m, id, StateDone)

	var got any
	require.NoError(t, m.Commit(id, func(result any) error {
		got = result
		return nil
	}))
	assert.Equal(t, 42, got)

	_, err := m.Status(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_Commit_NotDone(t *testing.T) {
	m := NewManager()
	block := make(chan struct{})
	id := m.Create(context.Background(), func(ctx context.Context, progress Progress) (any, error) {
		<-block
		return nil, nil
	})
	defer close(block)

	err := m.Commit(id, func(result any) error { return nil })
	assert.ErrorIs(t, err, ErrNotDone)
}

func TestManager_Status_UnknownID(t *testing.T) {
	m := NewManager()
	_, err := m.Status("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
