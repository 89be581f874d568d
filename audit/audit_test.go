package audit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogEvictsOldestOnOverflow(t *testing.T) {
	l := New(3, nil)
	for i := 0; i < 5; i++ {
		l.LogEvent(Event{Kind: Keygen, SessionID: fmt.Sprintf("s%d", i), Message: "m"})
	}
	require.Equal(t, 3, l.Len())

	recent := l.Recent(10)
	require.Len(t, recent, 3)
	require.Equal(t, "s4", recent[0].SessionID)
	require.Equal(t, "s3", recent[1].SessionID)
	require.Equal(t, "s2", recent[2].SessionID)
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	l := New(10, nil)
	l.LogEvent(Event{Kind: Signing, SessionID: "a", Message: "first"})
	l.LogEvent(Event{Kind: Verification, SessionID: "b", Message: "second"})

	recent := l.Recent(1)
	require.Len(t, recent, 1)
	require.Equal(t, "b", recent[0].SessionID)
}

func TestTextFormatMatchesSpec(t *testing.T) {
	pid := uint8(2)
	e := Event{Kind: DidRotation, SessionID: "sess-1", ParticipantID: &pid, Message: "rotated shards"}
	require.Equal(t, "AUDIT [DidRotation] sess-1 (P#2) :: rotated shards", e.Text())

	withoutParticipant := Event{Kind: EventError, SessionID: "sess-2", Message: "boom"}
	require.Equal(t, "AUDIT [Error] sess-2 :: boom", withoutParticipant.Text())
}

func TestLogIsSafeForConcurrentProducers(t *testing.T) {
	l := New(50, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.LogEvent(Event{Kind: Aggregation, SessionID: fmt.Sprintf("s%d", i), Message: "concurrent"})
		}(i)
	}
	wg.Wait()
	require.Equal(t, 20, l.Len())
}
