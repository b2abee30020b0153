package grouping

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmotkit/Gold/models"
)

func TestGroupOrderIsNumeric(t *testing.T) {
	_, ix := newTestIndex(
		participant(1, "10", 0),
		participant(2, "2", 0),
		participant(3, "", 0),
	)
	assert.Equal(t, []string{"2", "10", models.UngroupedCode}, ix.Codes())
}

func TestCompareGroupCodes(t *testing.T) {
	codes := []string{"B", models.UngroupedCode, "第 12 組", "A", "3", "第 2 組"}
	SortGroupCodes(codes)
	assert.Equal(t, []string{"第 2 組", "3", "第 12 組", "A", "B", models.UngroupedCode}, codes)

	assert.Equal(t, 0, CompareGroupCodes("None", models.UngroupedCode))
	assert.Positive(t, CompareGroupCodes("", "99"))
}

func TestMoveIntoGroupAtIndex(t *testing.T) {
	store, ix := newTestIndex(
		participant(5, "", 0),
		participant(7, "3", 0),
		participant(9, "3", 1),
	)

	changed, err := ix.MoveParticipant(5, "3", 0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []int{5, 7, 9}, members(t, ix, "3"))
	for want, id := range []int{5, 7, 9} {
		p, _ := store.Get(id)
		assert.Equal(t, want, p.DisplayOrder, "participant %d", id)
		assert.Equal(t, "3", p.Group())
	}
	assert.Empty(t, members(t, ix, models.UngroupedCode))
	require.NoError(t, ix.Verify())
}

func TestMoveToOwnPositionIsNoop(t *testing.T) {
	_, ix := newTestIndex(
		participant(1, "1", 0),
		participant(2, "1", 1),
		participant(3, "2", 0),
	)
	before := ix.Layout()

	changed, err := ix.MoveParticipant(2, "1", 1)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, before, ix.Layout())
}

func TestMoveClampsIndex(t *testing.T) {
	_, ix := newTestIndex(
		participant(1, "1", 0),
		participant(2, "1", 1),
		participant(3, "2", 0),
	)

	_, err := ix.MoveParticipant(3, "1", 42)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, members(t, ix, "1"))

	_, err = ix.MoveParticipant(3, "1", -5)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 2}, members(t, ix, "1"))
}

func TestMoveErrors(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0))

	_, err := ix.MoveParticipant(1, "nope", 0)
	assert.True(t, errors.Is(err, ErrGroupNotFound))

	_, err = ix.MoveParticipant(99, "1", 0)
	assert.True(t, errors.Is(err, ErrParticipantNotFound))
}

func TestRandomMovesKeepMembershipInvariant(t *testing.T) {
	var ps []models.Participant
	groups := []string{"1", "2", "3", ""}
	for id := 1; id <= 24; id++ {
		ps = append(ps, participant(id, groups[id%len(groups)], id))
	}
	store, ix := newTestIndex(ps...)
	require.NoError(t, ix.AddGroup("empty"))

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		codes := ix.Codes()
		id := 1 + rng.Intn(24)
		target := codes[rng.Intn(len(codes))]
		_, err := ix.MoveParticipant(id, target, rng.Intn(10)-2)
		require.NoError(t, err)
		require.NoError(t, ix.Verify(), "after move %d", i)
	}

	for _, g := range ix.Groups() {
		for pos, id := range g.ParticipantIDs {
			p, ok := store.Get(id)
			require.True(t, ok)
			assert.Equal(t, pos, p.DisplayOrder)
			assert.Equal(t, g.Code, p.Group())
		}
	}
}

func TestSortGroupByHandicapIsStableWithUnratedLast(t *testing.T) {
	unrated := participant(3, "1", 2)
	placeholder := withHandicap(participant(5, "1", 4), models.UnratedHandicap)
	store, ix := newTestIndex(
		withHandicap(participant(1, "1", 0), 10),
		withHandicap(participant(2, "1", 1), 5),
		unrated,
		withHandicap(participant(4, "1", 3), 10),
		placeholder,
		withHandicap(participant(6, "1", 5), 5),
	)

	require.NoError(t, ix.SortGroupByHandicap("1"))
	assert.Equal(t, []int{2, 6, 1, 4, 3, 5}, members(t, ix, "1"))

	p, _ := store.Get(6)
	assert.Equal(t, 1, p.DisplayOrder)

	assert.True(t, errors.Is(ix.SortGroupByHandicap("zzz"), ErrGroupNotFound))
}

func TestDeleteGroupAppendsToUngrouped(t *testing.T) {
	store, ix := newTestIndex(
		participant(1, "2", 0),
		participant(2, "2", 1),
		participant(9, "", 0),
	)

	require.NoError(t, ix.DeleteGroup("2"))
	assert.False(t, ix.Has("2"))
	assert.Equal(t, []int{9, 1, 2}, members(t, ix, models.UngroupedCode))
	assert.Equal(t, []string{models.UngroupedCode}, ix.Codes())

	p, _ := store.Get(2)
	assert.Nil(t, p.GroupCode)
	assert.Equal(t, 2, p.DisplayOrder)
	require.NoError(t, ix.Verify())
}

func TestDeleteGroupRejectsUngrouped(t *testing.T) {
	_, ix := newTestIndex(participant(1, "", 0))

	err := ix.DeleteGroup(models.UngroupedCode)
	assert.True(t, IsValidation(err))
	assert.True(t, errors.Is(err, ErrProtectedGroup))
	assert.True(t, errors.Is(ix.DeleteGroup("missing"), ErrGroupNotFound))
}

func TestAddGroup(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "3", 0))

	require.NoError(t, ix.AddGroup(" 2 "))
	assert.Equal(t, []string{"1", "2", "3", models.UngroupedCode}, ix.Codes())
	assert.Empty(t, members(t, ix, "2"))

	assert.True(t, errors.Is(ix.AddGroup("2"), ErrDuplicateGroup))
	assert.True(t, errors.Is(ix.AddGroup("None"), ErrDuplicateGroup))
	assert.True(t, errors.Is(ix.AddGroup("  "), ErrInvalidGroupCode))
}

func TestRebuildKeepsEmptyGroupsAndOrder(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "2", 0))
	require.NoError(t, ix.AddGroup("5"))
	require.NoError(t, ix.ReorderGroups("1", "2"))

	ix.Rebuild(true)
	assert.Equal(t, []string{"2", "1", "5", models.UngroupedCode}, ix.Codes())

	ix.Rebuild(false)
	assert.Equal(t, []string{"1", "2", models.UngroupedCode}, ix.Codes())
}

func TestReorderGroups(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "2", 0))

	require.NoError(t, ix.ReorderGroups("2", "1"))
	assert.Equal(t, []string{"2", "1", models.UngroupedCode}, ix.Codes())

	assert.True(t, errors.Is(ix.ReorderGroups("1", models.UngroupedCode), ErrProtectedGroup))
	assert.True(t, errors.Is(ix.ReorderGroups("1", "7"), ErrGroupNotFound))
}

func TestLayoutOmitsUngroupedFromGroupOrder(t *testing.T) {
	_, ix := newTestIndex(participant(1, "1", 0), participant(2, "", 0))

	layout := ix.Layout()
	assert.Equal(t, []string{"1"}, layout.GroupOrder)
	require.Len(t, layout.Groups, 2)
	assert.Equal(t, models.UngroupedCode, layout.Groups[1].GroupCode)
	assert.Equal(t, []int{2}, layout.Groups[1].ParticipantIDs)
}
