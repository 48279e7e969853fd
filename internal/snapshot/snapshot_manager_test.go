package snapshot

// ============================================================================
// 狀態檔管理器測試
// 職責：驗證原子性寫入、載入、版本驗證、備份與外部修改監看
// ============================================================================

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

func sampleState() types.State {
	state := types.NewState()
	state.ItemQueue = []types.QueuedItem{
		{WorkshopItemID: 1, Quantity: 2},
		{WorkshopItemID: 7, Quantity: 0},
	}
	state.CurrentlyCraftedItem = &types.CurrentItem{
		WorkshopItemID:  3,
		StartedCrafting: true,
		PhasesComplete:  1,
		ContributedItemsInCurrentPhase: []types.PhaseItem{
			{ItemID: 5057, QuantityComplete: 12},
		},
	}
	state.Presets = []types.Preset{{ID: "p-1", Name: "Subs", ItemQueue: []types.QueuedItem{{WorkshopItemID: 1, Quantity: 4}}}}
	return state
}

// ============================================================================
// 基礎功能測試
// ============================================================================

func TestNewManager(t *testing.T) {
	manager := NewManager("state.json")
	assert.NotNil(t, manager)
	assert.Equal(t, "state.json", manager.GetPath())
}

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	manager := NewManager(path)

	original := sampleState()
	require.NoError(t, manager.Write(original))

	loaded, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, types.CurrentSchemaVer, loaded.SchemaVer)
	assert.Equal(t, original.ItemQueue, loaded.ItemQueue, "zero-quantity entries survive until consumed")
	require.NotNil(t, loaded.CurrentlyCraftedItem)
	assert.Equal(t, *original.CurrentlyCraftedItem, *loaded.CurrentlyCraftedItem)
	assert.Equal(t, original.Presets, loaded.Presets)
}

func TestFirstBoot(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "missing.json"))

	state, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, types.CurrentSchemaVer, state.SchemaVer)
	assert.Nil(t, state.CurrentlyCraftedItem)
	assert.NotNil(t, state.ItemQueue)
	assert.True(t, state.EnableRepairKitCalculator)
	assert.False(t, manager.Exists())
}

func TestAtomicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	manager := NewManager(path)

	old := types.NewState()
	old.ItemQueue = []types.QueuedItem{{WorkshopItemID: 1, Quantity: 1}}
	require.NoError(t, manager.Write(old))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		next := types.NewState()
		next.ItemQueue = []types.QueuedItem{{WorkshopItemID: 2, Quantity: 1}}
		assert.NoError(t, manager.Write(next))
	}()

	var loaded types.State
	go func() {
		defer wg.Done()
		time.Sleep(5 * time.Millisecond)
		state, err := manager.Load()
		assert.NoError(t, err)
		loaded = state
	}()

	wg.Wait()

	require.Len(t, loaded.ItemQueue, 1)
	id := loaded.ItemQueue[0].WorkshopItemID
	assert.True(t, id == 1 || id == 2, "should load either the old or the new state, got %d", id)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not exist after write")
}

// ============================================================================
// 錯誤處理
// ============================================================================

func TestVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_ver": 99, "item_queue": []}`), 0644))

	_, err := NewManager(path).Load()
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_ver": 1, "item_queue": [`), 0644))

	_, err := NewManager(path).Load()
	assert.ErrorIs(t, err, ErrCorruptedSnapshot)
}

func TestLoadFillsNilSlices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_ver": 1, "currently_crafted_item": {"workshop_item_id": 4}}`), 0644))

	state, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.NotNil(t, state.ItemQueue)
	assert.NotNil(t, state.Presets)
	assert.NotNil(t, state.CurrentlyCraftedItem.ContributedItemsInCurrentPhase)
}

func TestWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	readOnlyDir := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readOnlyDir, 0444))
	defer os.Chmod(readOnlyDir, 0755)

	err := NewManager(filepath.Join(readOnlyDir, "state.json")).Write(types.NewState())
	assert.Error(t, err)
}

// ============================================================================
// 進階功能測試
// ============================================================================

func TestWriteWithBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	manager := NewManager(path)

	require.NoError(t, manager.Write(types.NewState()))

	for i := 0; i < 4; i++ {
		state := types.NewState()
		state.ItemQueue = []types.QueuedItem{{WorkshopItemID: uint32(i + 1), Quantity: 1}}
		require.NoError(t, manager.WriteWithBackup(state, 2))
		time.Sleep(2 * time.Millisecond)
	}

	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, uint32(4), loaded.ItemQueue[0].WorkshopItemID)

	backups, err := manager.Backups()
	require.NoError(t, err)
	assert.Len(t, backups, 2, "only the newest backups are kept")
}

func TestBackupsWithPatternCharactersInName(t *testing.T) {
	dir := t.TempDir()
	manager := NewManager(filepath.Join(dir, "workshop[alt]{1}*.json"))
	other := NewManager(filepath.Join(dir, "workshopa1.json"))

	require.NoError(t, manager.Write(types.NewState()))
	require.NoError(t, other.Write(types.NewState()))
	require.NoError(t, other.WriteWithBackup(types.NewState(), 3))
	require.NoError(t, manager.WriteWithBackup(types.NewState(), 3))

	backups, err := manager.Backups()
	require.NoError(t, err)
	require.Len(t, backups, 1, "backups of other files are not matched")
	assert.True(t, strings.HasPrefix(filepath.Base(backups[0]), "workshop[alt]{1}*.json."))
}

func TestWatchReportsForeignWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	manager := NewManager(path)
	require.NoError(t, manager.Write(types.NewState()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan types.State, 4)
	go func() {
		_ = manager.Watch(ctx, func(s types.State) { changes <- s })
	}()
	time.Sleep(100 * time.Millisecond)

	// 自己寫入的內容不應觸發
	require.NoError(t, manager.Write(types.NewState()))

	foreign := types.NewState()
	foreign.ItemQueue = []types.QueuedItem{{WorkshopItemID: 42, Quantity: 3}}
	data, err := json.Marshal(foreign)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))

	select {
	case state := <-changes:
		require.Len(t, state.ItemQueue, 1)
		assert.Equal(t, uint32(42), state.ItemQueue[0].WorkshopItemID)
	case <-time.After(3 * time.Second):
		t.Fatal("external change was not reported")
	}
}

// ============================================================================
// 效能測試
// ============================================================================

func BenchmarkWrite(b *testing.B) {
	manager := NewManager(filepath.Join(b.TempDir(), "state.json"))
	state := sampleState()
	for i := 0; i < 200; i++ {
		state.ItemQueue = append(state.ItemQueue, types.QueuedItem{WorkshopItemID: uint32(i), Quantity: i})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = manager.Write(state)
	}
}
