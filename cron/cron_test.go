package cron

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAddFiresOnSchedule(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fires int32
	_, err := s.Add("* * * * * *", func() { atomic.AddInt32(&fires, 1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fires) >= 2
	}, 3*time.Second, 50*time.Millisecond)
}

func TestRemoveStopsFurtherFirings(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	var fires int32
	handle, err := s.Add("* * * * * *", func() { atomic.AddInt32(&fires, 1) })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&fires) >= 1
	}, 2*time.Second, 25*time.Millisecond)

	s.Remove(handle)
	after := atomic.LoadInt32(&fires)

	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, after, atomic.LoadInt32(&fires))
}

func TestAddRejectsInvalidExpression(t *testing.T) {
	s := New(nil)
	defer s.Stop()

	_, err := s.Add("not a cron expression", func() {})
	require.Error(t, err)
}
