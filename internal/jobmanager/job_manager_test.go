package jobmanager

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// ============================================================================
// Test Helper Functions
// ============================================================================

// testCatalog 兩個項目：1 有兩個階段，7 只有一個階段
func testCatalog() *catalog.Catalog {
	return catalog.NewWith([]catalog.Craft{
		{
			WorkshopItemID: 1, ResultItem: 9001, Name: "Shark-class Bow",
			Phases: []catalog.Phase{
				{Name: "Bow 1", Items: []catalog.CraftItem{
					{ItemID: 5057, Name: "Cobalt Ingot", SetQuantity: 5, SetsRequired: 6},
					{ItemID: 5371, Name: "Walnut Lumber", SetQuantity: 3, SetsRequired: 4},
				}},
				{Name: "Bow 2", Items: []catalog.CraftItem{
					{ItemID: 5057, Name: "Cobalt Ingot", SetQuantity: 5, SetsRequired: 2},
				}},
			},
		},
		{
			WorkshopItemID: 7, ResultItem: 9007, Name: "Bronco Engine",
			Phases: []catalog.Phase{
				{Name: "Engine", Items: []catalog.CraftItem{
					{ItemID: 5058, Name: "Steel Ingot", SetQuantity: 2, SetsRequired: 3},
				}},
			},
		},
	})
}

type memorySaver struct {
	mu     sync.Mutex
	writes int
	last   types.State
	err    error
}

func (m *memorySaver) Write(state types.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes++
	m.last = state
	return nil
}

func newTestJobManager(queue ...types.QueuedItem) (*JobManager, *memorySaver) {
	state := types.NewState()
	state.ItemQueue = append(state.ItemQueue, queue...)
	saver := &memorySaver{}
	return NewJobManager(state, testCatalog(), saver), saver
}

// ============================================================================
// TakeItemFromQueue
// ============================================================================

func TestTakeItemFromQueue(t *testing.T) {
	tests := []struct {
		name      string
		queue     []types.QueuedItem
		wantTaken bool
		wantItem  uint32
		wantQueue []types.QueuedItem
	}{
		{
			name:      "decrements first entry",
			queue:     []types.QueuedItem{{WorkshopItemID: 1, Quantity: 2}},
			wantTaken: true,
			wantItem:  1,
			wantQueue: []types.QueuedItem{{WorkshopItemID: 1, Quantity: 1}},
		},
		{
			name:      "removes entry with quantity one",
			queue:     []types.QueuedItem{{WorkshopItemID: 1, Quantity: 1}, {WorkshopItemID: 7, Quantity: 3}},
			wantTaken: true,
			wantItem:  1,
			wantQueue: []types.QueuedItem{{WorkshopItemID: 7, Quantity: 3}},
		},
		{
			name:      "prunes zero entries lazily",
			queue:     []types.QueuedItem{{WorkshopItemID: 1, Quantity: 0}, {WorkshopItemID: 7, Quantity: 0}, {WorkshopItemID: 7, Quantity: 2}},
			wantTaken: true,
			wantItem:  7,
			wantQueue: []types.QueuedItem{{WorkshopItemID: 7, Quantity: 1}},
		},
		{
			name:      "exhausted queue",
			queue:     []types.QueuedItem{{WorkshopItemID: 1, Quantity: 0}},
			wantTaken: false,
			wantQueue: []types.QueuedItem{},
		},
		{
			name:      "empty queue",
			queue:     nil,
			wantTaken: false,
			wantQueue: []types.QueuedItem{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.NewState()
			s.ItemQueue = append(s.ItemQueue, tt.queue...)

			taken := TakeItemFromQueue(&s)

			assert.Equal(t, tt.wantTaken, taken)
			if tt.wantTaken {
				require.NotNil(t, s.CurrentlyCraftedItem)
				assert.Equal(t, tt.wantItem, s.CurrentlyCraftedItem.WorkshopItemID)
				assert.False(t, s.CurrentlyCraftedItem.StartedCrafting)
			} else {
				assert.Nil(t, s.CurrentlyCraftedItem)
			}
			assert.ElementsMatch(t, tt.wantQueue, s.ItemQueue)
		})
	}
}

func TestTakeItemFromQueueConsumesExactlyOneUnit(t *testing.T) {
	s := types.NewState()
	s.ItemQueue = []types.QueuedItem{
		{WorkshopItemID: 1, Quantity: 2},
		{WorkshopItemID: 7, Quantity: 0},
		{WorkshopItemID: 7, Quantity: 3},
	}

	for total := s.QueueTotal(); total > 0; total-- {
		require.True(t, TakeItemFromQueue(&s))
		assert.Equal(t, total-1, s.QueueTotal())
		s.CurrentlyCraftedItem = nil
	}

	assert.False(t, TakeItemFromQueue(&s))
	assert.Empty(t, s.ItemQueue)
}

func TestTakeItemFromQueuePassesThroughCurrentCraft(t *testing.T) {
	s := types.NewState()
	s.CurrentlyCraftedItem = &types.CurrentItem{WorkshopItemID: 7}
	s.ItemQueue = []types.QueuedItem{{WorkshopItemID: 1, Quantity: 2}}

	assert.False(t, TakeItemFromQueue(&s))
	assert.Equal(t, uint32(7), s.CurrentlyCraftedItem.WorkshopItemID)
	assert.Equal(t, 2, s.QueueTotal())
}

// ============================================================================
// UpdateFromCraftState
// ============================================================================

func liveState() *client.CraftState {
	return &client.CraftState{
		ResultItem:    9001,
		StepsComplete: 1,
		StepsTotal:    3,
		Items: []client.CraftItem{
			{ItemID: 5057, ItemCountPerStep: 5, StepsComplete: 2, StepsTotal: 6},
			{ItemID: 5371, ItemCountPerStep: 3, StepsComplete: 0, StepsTotal: 4},
		},
	}
}

func TestUpdateFromCraftStateRebuildsOnShapeMismatch(t *testing.T) {
	cur := &types.CurrentItem{WorkshopItemID: 1, StartedCrafting: true}

	changed := UpdateFromCraftState(cur, liveState())

	assert.True(t, changed)
	assert.Equal(t, uint32(1), cur.PhasesComplete)
	assert.Equal(t, []types.PhaseItem{
		{ItemID: 5057, QuantityComplete: 10},
		{ItemID: 5371, QuantityComplete: 0},
	}, cur.ContributedItemsInCurrentPhase)
}

func TestUpdateFromCraftStateIsIdempotent(t *testing.T) {
	cur := &types.CurrentItem{WorkshopItemID: 1}
	live := liveState()

	require.True(t, UpdateFromCraftState(cur, live))
	assert.False(t, UpdateFromCraftState(cur, live), "second application must not report changes")
}

func TestUpdateFromCraftStateSyncsPerIndex(t *testing.T) {
	cur := &types.CurrentItem{
		WorkshopItemID: 1,
		PhasesComplete: 1,
		ContributedItemsInCurrentPhase: []types.PhaseItem{
			{ItemID: 9999, QuantityComplete: 10},
			{ItemID: 5371, QuantityComplete: 3},
		},
	}

	assert.True(t, UpdateFromCraftState(cur, liveState()))
	assert.Equal(t, uint32(5057), cur.ContributedItemsInCurrentPhase[0].ItemID)
	assert.Equal(t, uint32(0), cur.ContributedItemsInCurrentPhase[1].QuantityComplete)
}

func TestRecordContributionAndCompletePhase(t *testing.T) {
	cur := &types.CurrentItem{ContributedItemsInCurrentPhase: []types.PhaseItem{{ItemID: 5057}}}

	assert.True(t, RecordContribution(cur, 5057, 15))
	assert.Equal(t, uint32(15), cur.ContributedItemsInCurrentPhase[0].QuantityComplete)
	assert.False(t, RecordContribution(cur, 1234, 1))

	CompletePhase(cur)
	assert.Equal(t, uint32(1), cur.PhasesComplete)
	assert.Empty(t, cur.ContributedItemsInCurrentPhase)
}

// ============================================================================
// 佇列編輯
// ============================================================================

func TestAdd(t *testing.T) {
	tests := []struct {
		name     string
		id       uint32
		quantity int
		wantErr  error
	}{
		{name: "known craft", id: 1, quantity: 2},
		{name: "unknown craft", id: 99, quantity: 1, wantErr: ErrUnknownCraft},
		{name: "zero quantity", id: 1, quantity: 0, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jm, saver := newTestJobManager()
			err := jm.Add(tt.id, tt.quantity)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, saver.writes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, saver.writes)
			assert.Equal(t, []types.QueuedItem{{WorkshopItemID: tt.id, Quantity: tt.quantity}}, jm.Snapshot().ItemQueue)
		})
	}
}

func TestAddDoesNotMerge(t *testing.T) {
	jm, _ := newTestJobManager()
	require.NoError(t, jm.Add(1, 1))
	require.NoError(t, jm.Add(1, 1))
	assert.Len(t, jm.Snapshot().ItemQueue, 2)
}

func TestSetQuantityClampsAndKeepsZero(t *testing.T) {
	jm, _ := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 3})

	require.NoError(t, jm.SetQuantity(0, -4))
	assert.Equal(t, []types.QueuedItem{{WorkshopItemID: 1, Quantity: 0}}, jm.Snapshot().ItemQueue)

	assert.ErrorIs(t, jm.SetQuantity(3, 1), ErrIndexOutOfRange)
}

func TestRemove(t *testing.T) {
	jm, _ := newTestJobManager(
		types.QueuedItem{WorkshopItemID: 1, Quantity: 3},
		types.QueuedItem{WorkshopItemID: 7, Quantity: 1},
	)

	require.NoError(t, jm.Remove(0))
	assert.Equal(t, []types.QueuedItem{{WorkshopItemID: 7, Quantity: 1}}, jm.Snapshot().ItemQueue)
	assert.ErrorIs(t, jm.Remove(-1), ErrIndexOutOfRange)
}

func TestEditsRejectedWhileRunning(t *testing.T) {
	jm, saver := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 3})
	jm.SetRunning(true)

	assert.ErrorIs(t, jm.Add(7, 1), ErrRunning)
	assert.ErrorIs(t, jm.Remove(0), ErrRunning)
	_, err := jm.SavePreset("x")
	assert.ErrorIs(t, err, ErrRunning)
	assert.Zero(t, saver.writes)

	jm.SetRunning(false)
	assert.NoError(t, jm.Add(7, 1))
}

func TestCancelCurrent(t *testing.T) {
	jm, _ := newTestJobManager()
	cancelled, err := jm.CancelCurrent()
	require.NoError(t, err)
	assert.False(t, cancelled)

	s := jm.Snapshot()
	s.CurrentlyCraftedItem = &types.CurrentItem{WorkshopItemID: 1}
	require.NoError(t, jm.Commit(s, false))

	cancelled, err = jm.CancelCurrent()
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Nil(t, jm.Snapshot().CurrentlyCraftedItem)
}

func TestSaveErrorIsReturned(t *testing.T) {
	jm, saver := newTestJobManager()
	saver.err = errors.New("disk full")

	err := jm.Add(1, 1)
	assert.ErrorContains(t, err, "disk full")
}

// ============================================================================
// Snapshot / Commit
// ============================================================================

func TestSnapshotIsDeepCopy(t *testing.T) {
	jm, _ := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 3})
	s := jm.Snapshot()
	s.CurrentlyCraftedItem = &types.CurrentItem{WorkshopItemID: 1, ContributedItemsInCurrentPhase: []types.PhaseItem{{ItemID: 5}}}
	require.NoError(t, jm.Commit(s, false))

	copy1 := jm.Snapshot()
	copy1.ItemQueue[0].Quantity = 99
	copy1.CurrentlyCraftedItem.ContributedItemsInCurrentPhase[0].QuantityComplete = 7

	fresh := jm.Snapshot()
	assert.Equal(t, 3, fresh.ItemQueue[0].Quantity)
	assert.Zero(t, fresh.CurrentlyCraftedItem.ContributedItemsInCurrentPhase[0].QuantityComplete)
}

func TestCommitPersists(t *testing.T) {
	jm, saver := newTestJobManager()
	s := jm.Snapshot()
	s.ItemQueue = append(s.ItemQueue, types.QueuedItem{WorkshopItemID: 7, Quantity: 1})

	require.NoError(t, jm.Commit(s, true))
	assert.Equal(t, 1, saver.writes)
	assert.Equal(t, s.ItemQueue, saver.last.ItemQueue)

	require.NoError(t, jm.Commit(s, false))
	assert.Equal(t, 1, saver.writes)
}

func TestStats(t *testing.T) {
	jm, _ := newTestJobManager(
		types.QueuedItem{WorkshopItemID: 1, Quantity: 3},
		types.QueuedItem{WorkshopItemID: 7, Quantity: 0},
	)
	stats := jm.Stats()
	assert.Equal(t, 2, stats["entries"])
	assert.Equal(t, 3, stats["remaining"])
	assert.Equal(t, 0, stats["current"])
}

// ============================================================================
// 預設集
// ============================================================================

func TestPresets(t *testing.T) {
	jm, _ := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 2})

	preset, err := jm.SavePreset("Subs")
	require.NoError(t, err)
	assert.NotEmpty(t, preset.ID)

	_, err = jm.SavePreset("SUBS")
	assert.ErrorIs(t, err, ErrPresetExists)

	count, err := jm.ImportPreset("subs")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []types.QueuedItem{{WorkshopItemID: 1, Quantity: 4}}, jm.Snapshot().ItemQueue, "merged into existing entry")

	deleted, err := jm.DeletePreset(preset.ID)
	require.NoError(t, err)
	assert.Equal(t, "Subs", deleted.Name)

	_, err = jm.ImportPreset(preset.ID)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func TestSavePresetRequiresQueue(t *testing.T) {
	jm, _ := newTestJobManager()
	_, err := jm.SavePreset("Empty")
	assert.ErrorIs(t, err, ErrEmptyQueue)
}

func TestPresetIsIndependentOfQueue(t *testing.T) {
	jm, _ := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 2})
	_, err := jm.SavePreset("Subs")
	require.NoError(t, err)

	require.NoError(t, jm.SetQuantity(0, 9))
	assert.Equal(t, 2, jm.Snapshot().Presets[0].ItemQueue[0].Quantity)
}

// ============================================================================
// 材料清單
// ============================================================================

func TestMaterialList(t *testing.T) {
	s := types.NewState()
	s.ItemQueue = []types.QueuedItem{{WorkshopItemID: 7, Quantity: 2}}
	s.CurrentlyCraftedItem = &types.CurrentItem{
		WorkshopItemID: 1,
		PhasesComplete: 1,
		ContributedItemsInCurrentPhase: []types.PhaseItem{
			{ItemID: 5057, QuantityComplete: 5},
		},
	}

	materials := MaterialList(s, testCatalog())

	// Cobalt: 30 + 10 - 30 (phase 1) - 5 = 5; Walnut: 12 - 12 = 0 (omitted); Steel: 2 * 6 = 12
	require.Len(t, materials, 2)
	assert.Equal(t, "Cobalt Ingot", materials[0].Name)
	assert.Equal(t, 5, materials[0].TotalQuantity)
	assert.Equal(t, "Steel Ingot", materials[1].Name)
	assert.Equal(t, 12, materials[1].TotalQuantity)
	assert.Equal(t, types.IngredientCraftable, materials[1].Type)
}

func TestMaterialListToleratesEmptyCatalog(t *testing.T) {
	s := types.NewState()
	s.ItemQueue = []types.QueuedItem{{WorkshopItemID: 7, Quantity: 2}}
	s.CurrentlyCraftedItem = &types.CurrentItem{WorkshopItemID: 1}

	assert.Empty(t, MaterialList(s, catalog.New()))
}

// ============================================================================
// 文字匯入／匯出
// ============================================================================

func TestParseQueueText(t *testing.T) {
	text := "2x Shark-class Bow\r\n10 bronco engine\nnot a line\n3x Bronko Engine\n1x Completely Different Thing"

	items, unknown := ParseQueueText(text, testCatalog())

	assert.Equal(t, []types.QueuedItem{
		{WorkshopItemID: 1, Quantity: 2},
		{WorkshopItemID: 7, Quantity: 10},
	}, items)
	require.Len(t, unknown, 2)
	assert.Equal(t, 4, unknown[0].Line)
	assert.Equal(t, "Bronco Engine", unknown[0].Suggestion)
	assert.Empty(t, unknown[1].Suggestion)
	assert.Contains(t, unknown[0].String(), "did you mean")
}

func TestImportQueueMerges(t *testing.T) {
	jm, _ := newTestJobManager(types.QueuedItem{WorkshopItemID: 1, Quantity: 1})

	count, err := jm.ImportQueue([]types.QueuedItem{{WorkshopItemID: 1, Quantity: 2}, {WorkshopItemID: 7, Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, []types.QueuedItem{
		{WorkshopItemID: 1, Quantity: 3},
		{WorkshopItemID: 7, Quantity: 1},
	}, jm.Snapshot().ItemQueue)
}

func TestFormatQueueTextRoundTrips(t *testing.T) {
	cat := testCatalog()
	queue := []types.QueuedItem{{WorkshopItemID: 7, Quantity: 3}, {WorkshopItemID: 1, Quantity: 1}}

	text := FormatQueueText(queue, cat)
	assert.Equal(t, "3x Bronco Engine\n1x Shark-class Bow", text)

	parsed, unknown := ParseQueueText(text, cat)
	assert.Empty(t, unknown)
	assert.Equal(t, queue, parsed)
}

func TestFormatMaterials(t *testing.T) {
	text := FormatMaterials([]types.Ingredient{{Name: "Cobalt Ingot", TotalQuantity: 5}, {Name: "Steel Ingot", TotalQuantity: 12}})
	assert.Equal(t, "5x Cobalt Ingot\n12x Steel Ingot", text)
}
