package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shell-compose/shellcompose/job"
)

func TestAddAllocatesMonotonicIDs(t *testing.T) {
	r := New()

	var ids []job.ID
	for i := 0; i < 5; i++ {
		ids = append(ids, r.Add(job.Info{Args: []string{"sh", "-c", "true"}}))
	}

	for i := 1; i < len(ids); i++ {
		require.Greater(t, ids[i], ids[i-1])
	}
	require.NotZero(t, ids[0])
}

func TestIDsNeverReusedAfterRemove(t *testing.T) {
	r := New()

	id1 := r.Add(job.Info{Args: []string{"sh"}})
	r.Remove(id1)
	id2 := r.Add(job.Info{Args: []string{"sh"}})

	require.Greater(t, id2, id1)
	_, err := r.Get(id1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAllReturnsReverseInsertionOrder(t *testing.T) {
	r := New()

	id1 := r.Add(job.Info{Args: []string{"sh"}})
	id2 := r.Add(job.Info{Args: []string{"sh"}})
	id3 := r.Add(job.Info{Args: []string{"sh"}})

	all := r.All()
	require.Len(t, all, 3)
	require.Equal(t, id3, all[0].ID)
	require.Equal(t, id2, all[1].ID)
	require.Equal(t, id1, all[2].ID)
}

func TestFindService(t *testing.T) {
	r := New()
	id := r.Add(job.Info{
		Kind: job.Kind{Tag: job.KindService, Service: "web"},
		Args: []string{"just", "web"},
	})

	found, ok := r.FindService("web")
	require.True(t, ok)
	require.Equal(t, id, found)

	_, ok = r.FindService("missing")
	require.False(t, ok)
}

func TestMutateRestart(t *testing.T) {
	r := New()
	id := r.Add(job.Info{Args: []string{"sh"}, Restart: job.Restart{Policy: job.OnFailure, WaitMS: 50}})

	r.MutateRestart(id, 100)

	info, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, uint64(100), info.Restart.WaitMS)
}
