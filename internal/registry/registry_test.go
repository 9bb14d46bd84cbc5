package registry

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"carelink/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type publishedEvent struct {
	sessionID string
	snap      model.Session
	event     model.EventType
}

type recordingSink struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *recordingSink) Publish(sessionID string, snap model.Session, event model.EventType) {
	s.mu.Lock()
	s.events = append(s.events, publishedEvent{sessionID, snap, event})
	s.mu.Unlock()
}

func (s *recordingSink) all() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]publishedEvent, len(s.events))
	copy(out, s.events)
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *recordingSink, *fakeClock) {
	t.Helper()
	sink := &recordingSink{}
	clock := newFakeClock()
	reg := NewRegistry(sink)
	reg.SetClock(clock.Now)
	return reg, sink, clock
}

func TestCreateValidation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Create("u1", "u1", "doctor", "patient", model.KindVoice)
	assert.ErrorIs(t, err, model.ErrInvalidArgument, "initiator == respondent")

	_, err = reg.Create("", "u2", "doctor", "patient", model.KindVoice)
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	_, err = reg.Create("u1", "u2", "doctor", "patient", model.CallKind("fax"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVideo)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, model.CallInitiating, sess.Status)
	assert.Equal(t, int64(1), sess.StateVersion)
}

func TestGetSearchesBothPools(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = reg.Conclude(sess.ID, model.End("u1"))
	require.NoError(t, err)

	got, err = reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CallEnded, got.Status)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStateVersionStrictlyIncreasing(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	s2, err := reg.Mutate(sess.ID, model.Ring("u1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), s2.StateVersion)

	// Rejected transition must not bump the version.
	_, err = reg.Mutate(sess.ID, model.Answer("u1"))
	require.ErrorIs(t, err, model.ErrUnauthorized)

	s3, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), s3.StateVersion)

	s4, err := reg.Mutate(sess.ID, model.Answer("u2"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), s4.StateVersion)
}

func TestRejectionsNeverPublish(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	_, err = reg.Mutate(sess.ID, model.Answer("u1"))
	require.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Empty(t, sink.all())

	_, err = reg.Mutate(sess.ID, model.Answer("u2"))
	require.NoError(t, err)
	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventCallAnswered, events[0].event)
	assert.Equal(t, int64(2), events[0].snap.StateVersion)
}

func TestSignalingAppendBumpsVersionWithoutPublish(t *testing.T) {
	reg, sink, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	s2, err := reg.Mutate(sess.ID, model.AppendSignal("u1", json.RawMessage(`{"ice":1}`)))
	require.NoError(t, err)
	assert.Equal(t, int64(2), s2.StateVersion)
	assert.Empty(t, sink.all())
}

func TestConcludeMovesPoolsAtomically(t *testing.T) {
	reg, _, clock := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVideo)
	require.NoError(t, err)

	_, err = reg.Mutate(sess.ID, model.Answer("u2"))
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	ended, err := reg.Conclude(sess.ID, model.End("u1"))
	require.NoError(t, err)
	assert.Equal(t, model.CallEnded, ended.Status)
	assert.Equal(t, int64(30), ended.DurationSeconds)
	assert.Equal(t, "u1", ended.EndedBy)
	assert.Equal(t, int64(3), ended.StateVersion)

	// Gone from the live pool: a further mutation reports AlreadyEnded.
	_, err = reg.Mutate(sess.ID, model.Answer("u2"))
	assert.ErrorIs(t, err, model.ErrAlreadyEnded)

	_, err = reg.Mutate("never-existed", model.Answer("u2"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	prior, ok := reg.GetConcluded(sess.ID)
	require.True(t, ok)
	assert.Equal(t, ended.DurationSeconds, prior.DurationSeconds)
}

func TestConcludeRefusesNonTerminalTransition(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	_, err = reg.Conclude(sess.ID, model.Ring("u1"))
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestActiveFor(t *testing.T) {
	reg, _, clock := newTestRegistry(t)

	first, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	second, err := reg.Create("u1", "u3", "doctor", "patient", model.KindVideo)
	require.NoError(t, err)

	got, err := reg.ActiveFor("u1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID, "most recent live session wins")

	got, err = reg.ActiveFor("u2")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	_, err = reg.ActiveFor("u9")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestConcludedQueries(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	a, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)
	b, err := reg.Create("u2", "u1", "patient", "doctor", model.KindVideo)
	require.NoError(t, err)
	c, err := reg.Create("u1", "u3", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	for _, id := range []string{a.ID, b.ID, c.ID} {
		_, err := reg.Conclude(id, model.End("u1"))
		require.NoError(t, err)
	}

	between := reg.ConcludedBetween("u1", "u2")
	require.Len(t, between, 2, "both directions count")

	forU1 := reg.ConcludedFor("u1")
	assert.Len(t, forU1, 3)

	forU3 := reg.ConcludedFor("u3")
	require.Len(t, forU3, 1)
	assert.Equal(t, c.ID, forU3[0].ID)
}

func TestStats(t *testing.T) {
	reg, _, clock := newTestRegistry(t)

	_, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	done, err := reg.Create("u3", "u4", "doctor", "patient", model.KindVideo)
	require.NoError(t, err)
	_, err = reg.Mutate(done.ID, model.Answer("u4"))
	require.NoError(t, err)
	clock.Advance(20 * time.Second)
	_, err = reg.Conclude(done.ID, model.End("u3"))
	require.NoError(t, err)

	st := reg.Stats()
	assert.Equal(t, 1, st.LiveCount)
	assert.Equal(t, 1, st.ConcludedCount)
	assert.Equal(t, int64(20), st.TotalDurationSeconds)
	assert.Equal(t, float64(20), st.AverageDurationSeconds)
	assert.Equal(t, 1, st.ByKindCounts[model.KindVoice])
	assert.Equal(t, 1, st.ByKindCounts[model.KindVideo])
}

func TestHandoffMarkers(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	assert.False(t, reg.BeginHandoff(sess.ID), "session still live")

	_, err = reg.Conclude(sess.ID, model.End("u2"))
	require.NoError(t, err)

	assert.True(t, reg.BeginHandoff(sess.ID))
	assert.False(t, reg.BeginHandoff(sess.ID), "at most once")

	ref := model.DurableRef{ContentRef: "abc", TransactionRef: "tx-1"}
	require.NoError(t, reg.AttachDurableRef(sess.ID, ref))

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DurableRef)
	assert.Equal(t, "tx-1", got.DurableRef.TransactionRef)

	require.NoError(t, reg.MarkHandoffFallback(sess.ID))
	got, err = reg.Get(sess.ID)
	require.NoError(t, err)
	assert.True(t, got.HandoffFallback)
}

func TestConcurrentSignalingKeepsVersionsUnique(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	sess, err := reg.Create("u1", "u2", "doctor", "patient", model.KindVoice)
	require.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			payload := json.RawMessage(fmt.Sprintf(`{"seq":%d}`, i))
			_, err := reg.Mutate(sess.ID, model.AppendSignal("u1", payload))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := reg.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1+n), got.StateVersion)
	assert.Len(t, got.Signals, n)
}

func TestConcurrentSessionsDoNotInterfere(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		sess, err := reg.Create(fmt.Sprintf("a%d", i), fmt.Sprintf("b%d", i), "doctor", "patient", model.KindVoice)
		require.NoError(t, err)
		ids[i] = sess.ID
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := reg.Mutate(ids[i], model.Answer(fmt.Sprintf("b%d", i)))
			assert.NoError(t, err)
			_, err = reg.Conclude(ids[i], model.End(fmt.Sprintf("a%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	st := reg.Stats()
	assert.Equal(t, 0, st.LiveCount)
	assert.Equal(t, n, st.ConcludedCount)
}
