package grouping

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmotkit/Gold/models"
)

func TestDropIntoOtherGroup(t *testing.T) {
	store, ix := newTestIndex(
		participant(5, "", 0),
		participant(7, "3", 0),
		participant(9, "3", 1),
	)
	d := NewDragDrop()

	require.NoError(t, d.Start(ix, 5))
	d.Over("3")
	assert.Equal(t, DragState{Phase: DragDragging, ParticipantID: 5, HoveredGroup: "3"}, d.State())

	changed, err := d.Drop(ix, DropTarget{GroupCode: "3", Index: 0})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int{5, 7, 9}, members(t, ix, "3"))
	p, _ := store.Get(9)
	assert.Equal(t, 2, p.DisplayOrder)
	assert.Equal(t, DragIdle, d.State().Phase)
}

func TestDropFallsBackToHoveredGroup(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "2", 0))
	d := NewDragDrop()

	require.NoError(t, d.Start(ix, 1))
	d.Over("2")
	changed, err := d.Drop(ix, DropTarget{Index: EndOfGroup})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int{2, 1}, members(t, ix, "2"))
}

func TestDropWithinGroupWithoutIndexGoesLast(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "1", 1), participant(3, "1", 2))
	d := NewDragDrop()

	require.NoError(t, d.Start(ix, 1))
	changed, err := d.Drop(ix, DropTarget{GroupCode: "1", Index: EndOfGroup})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int{2, 3, 1}, members(t, ix, "1"))
}

func TestDropWithoutTargetIsNoop(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "2", 0))
	before := ix.Layout()
	d := NewDragDrop()

	require.NoError(t, d.Start(ix, 1))
	changed, err := d.Drop(ix, DropTarget{Index: 0})
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, d.Start(ix, 1))
	changed, err = d.Drop(ix, DropTarget{GroupCode: "does-not-exist", Index: 0})
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, before, ix.Layout())
	assert.Equal(t, DragIdle, d.State().Phase)
}

func TestDropWhenIdleIsNoop(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0))
	d := NewDragDrop()

	changed, err := d.Drop(ix, DropTarget{GroupCode: "1", Index: 0})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDragEndClearsHover(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0))
	d := NewDragDrop()

	require.NoError(t, d.Start(ix, 1))
	d.Over("1")
	d.End()
	assert.Equal(t, DragState{Phase: DragIdle}, d.State())

	d.Over("1")
	assert.Empty(t, d.State().HoveredGroup)
}

func TestDragStartUnknownParticipant(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0))
	d := NewDragDrop()

	assert.True(t, errors.Is(d.Start(ix, 42), ErrParticipantNotFound))
	assert.Equal(t, DragIdle, d.State().Phase)
}

func TestEngineDropMarksUnsaved(t *testing.T) {
	gw := &fakeGateway{participants: []models.Participant{
		participant(1, "1", 0),
		participant(2, "2", 0),
	}}
	e, _, log := newTestEngine(t, gw)

	require.NoError(t, e.DragStart(1))
	require.NoError(t, e.DragOver("2"))
	changed, err := e.Drop(DropTarget{GroupCode: "2", Index: 1})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, e.HasUnsavedChanges())
	assert.True(t, log.has(EventGroupsUpdated))
	assert.Equal(t, DragIdle, e.DragState().Phase)
	assert.Empty(t, gw.saved)
}
