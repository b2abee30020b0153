package grouping

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmotkit/Gold/models"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

func notesOf(t *testing.T, e *Engine, id int) string {
	t.Helper()
	p, ok := e.Participant(id)
	require.True(t, ok)
	return p.Notes
}

func TestEditBurstFlushesLastValueOnce(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}}
	e, clock, _ := newTestEngine(t, gw)

	require.NoError(t, e.Edit(1, models.FieldNotes, "a"))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, e.Edit(1, models.FieldNotes, "ab"))
	clock.Advance(200 * time.Millisecond)
	require.NoError(t, e.Edit(1, models.FieldNotes, "abc"))
	assert.Equal(t, "abc", notesOf(t, e, 1))

	clock.Advance(DefaultDebounceWindow - time.Millisecond)
	assert.Never(t, func() bool { return len(gw.writesSnapshot()) > 0 }, 50*time.Millisecond, tick)

	clock.Advance(time.Millisecond)
	require.Eventually(t, func() bool { return e.PendingCount() == 0 }, waitFor, tick)

	writes := gw.writesSnapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, fieldWrite{ID: 1, Field: models.FieldNotes, Value: "abc"}, writes[0])
}

func TestEditsOfDifferentFieldsAreIndependent(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}}
	e, clock, _ := newTestEngine(t, gw)

	require.NoError(t, e.Edit(1, models.FieldNotes, "vip"))
	require.NoError(t, e.Edit(1, models.FieldHandicap, "12.5"))
	assert.Equal(t, 2, e.PendingCount())

	clock.Advance(DefaultDebounceWindow)
	require.Eventually(t, func() bool { return len(gw.writesSnapshot()) == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return e.PendingCount() == 0 }, waitFor, tick)

	p, _ := e.Participant(1)
	require.NotNil(t, p.Handicap)
	assert.Equal(t, 12.5, *p.Handicap)
}

func TestFailedFlushRefreshesParticipant(t *testing.T) {
	server := participant(1, "1", 0)
	server.Notes = "old"
	gw := &fakeGateway{participants: []models.Participant{server}, updateErr: errBackendDown}
	e, clock, log := newTestEngine(t, gw)
	fetchesBefore := gw.fetchCount()

	require.NoError(t, e.Edit(1, models.FieldNotes, "new"))
	assert.Equal(t, "new", notesOf(t, e, 1))

	clock.Advance(DefaultDebounceWindow)
	require.Eventually(t, func() bool { return log.has(EventFieldFlushFailed) }, waitFor, tick)
	require.Eventually(t, func() bool { return notesOf(t, e, 1) == "old" }, waitFor, tick)
	assert.Greater(t, gw.fetchCount(), fetchesBefore)
	assert.Zero(t, e.PendingCount())
}

func TestCommitWritesImmediately(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}}
	e, _, log := newTestEngine(t, gw)

	require.NoError(t, e.Commit(context.Background(), 1, models.FieldCheckInStatus, string(models.CheckInCheckedIn)))

	writes := gw.writesSnapshot()
	require.Len(t, writes, 1)
	assert.Equal(t, models.FieldCheckInStatus, writes[0].Field)
	p, _ := e.Participant(1)
	assert.True(t, p.IsCheckedIn())
	assert.True(t, log.has(EventFieldFlushed))
	assert.Zero(t, e.PendingCount())
}

func TestCommitFailureIsReturned(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}, updateErr: errBackendDown}
	e, _, _ := newTestEngine(t, gw)

	err := e.Commit(context.Background(), 1, models.FieldGender, string(models.GenderFemale))
	assert.True(t, errors.Is(err, errBackendDown))

	p, _ := e.Participant(1)
	assert.Equal(t, models.GenderMale, p.Gender)
}

func TestEditRejectsInvalidInput(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}}
	e, _, _ := newTestEngine(t, gw)

	err := e.Edit(1, models.FieldGender, "X")
	assert.True(t, errors.Is(err, ErrInvalidFieldValue))

	err = e.Edit(1, models.FieldGroupCode, "2")
	assert.True(t, IsValidation(err))

	err = e.Edit(99, models.FieldNotes, "x")
	assert.True(t, errors.Is(err, ErrParticipantNotFound))
	assert.Zero(t, e.PendingCount())
}

func TestFlushPendingSendsWaitingEdits(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0), participant(2, "1", 1)}}
	e, _, _ := newTestEngine(t, gw)

	require.NoError(t, e.Edit(1, models.FieldNotes, "one"))
	require.NoError(t, e.Edit(2, models.FieldNotes, "two"))

	require.NoError(t, e.FlushPending(context.Background()))
	assert.Len(t, gw.writesSnapshot(), 2)
	assert.Zero(t, e.PendingCount())
}

func TestCloseCancelsPendingEdits(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{participant(1, "1", 0)}}
	e, clock, _ := newTestEngine(t, gw)

	require.NoError(t, e.Edit(1, models.FieldNotes, "unsent"))
	e.Close()
	clock.Advance(time.Second)

	assert.Never(t, func() bool { return len(gw.writesSnapshot()) > 0 }, 50*time.Millisecond, tick)
	assert.Equal(t, "unsent", notesOf(t, e, 1))
	assert.True(t, errors.Is(e.Edit(1, models.FieldNotes, "again"), ErrEngineClosed))
}
