package runner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutputBufferEvictsOldestWhenFull(t *testing.T) {
	buf := NewOutputBuffer(3)

	base := time.Now()
	for i := 0; i < 5; i++ {
		buf.Push(LogLine{TS: base.Add(time.Duration(i) * time.Millisecond), Line: string(rune('a' + i))})
	}

	require.Equal(t, 3, buf.Len())

	lines, _ := buf.LinesSince(0)
	require.Len(t, lines, 3)
	require.Equal(t, "c", lines[0].Line)
	require.Equal(t, "d", lines[1].Line)
	require.Equal(t, "e", lines[2].Line)
}

func TestLinesSinceOnlyReturnsStrictlyNewer(t *testing.T) {
	buf := NewOutputBuffer(DefaultMaxLines)

	t0 := time.Now()
	buf.Push(LogLine{TS: t0, Line: "one"})
	buf.Push(LogLine{TS: t0.Add(time.Millisecond), Line: "two"})

	lines, newest := buf.LinesSince(t0.UnixNano())
	require.Len(t, lines, 1)
	require.Equal(t, "two", lines[0].Line)
	require.Equal(t, t0.Add(time.Millisecond).UnixNano(), newest)

	lines, _ = buf.LinesSince(newest)
	require.Empty(t, lines)
}

func TestLinesSinceOnEmptyBuffer(t *testing.T) {
	buf := NewOutputBuffer(10)
	lines, newest := buf.LinesSince(42)
	require.Nil(t, lines)
	require.Equal(t, int64(42), newest)
}
