// ============================================================================
// Workshop Queue 任務管理器 - 佇列與製作進度的唯一擁有者
// ============================================================================
//
// Package: internal/jobmanager
// 文件: job_manager.go
// 功能: 持有持久化狀態（佇列、當前製作、預設集），所有修改都經過這裡
//
// 設計理念:
//   - state 是單一真實來源，每次修改後立即透過 Saver 寫回
//   - 控制器以 Snapshot() 取得深拷貝，計算出新狀態後以 Commit() 交回
//   - 控制器執行中（非 Stopped）時拒絕使用者的佇列編輯
//
// 並發安全:
//   - 使用 sync.RWMutex 保護 state
//   - 讀操作使用 RLock，寫操作使用 Lock
//
// ============================================================================

package jobmanager

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tiendc/go-deepcopy"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var log = slog.Default()

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrUnknownCraft    = errors.New("unknown workshop craft")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrPresetExists    = errors.New("preset name already exists")
	ErrPresetNotFound  = errors.New("preset not found")
	ErrEmptyQueue      = errors.New("queue is empty")
	ErrRunning         = errors.New("queue cannot be edited while crafting")
)

// Saver 持久化狀態的協作者（snapshot.Manager）
type Saver interface {
	Write(state types.State) error
}

// JobManager 持有並修改持久化狀態
type JobManager struct {
	mu      sync.RWMutex
	state   types.State
	saver   Saver
	catalog *catalog.Catalog
	running bool
}

// NewJobManager 建立任務管理器
//
// saver 可為 nil（只在記憶體中操作，主要用於測試）。
func NewJobManager(state types.State, cat *catalog.Catalog, saver Saver) *JobManager {
	if state.ItemQueue == nil {
		state.ItemQueue = make([]types.QueuedItem, 0)
	}
	if state.Presets == nil {
		state.Presets = make([]types.Preset, 0)
	}
	return &JobManager{state: state, saver: saver, catalog: cat}
}

// Catalog 回傳工坊目錄
func (jm *JobManager) Catalog() *catalog.Catalog {
	return jm.catalog
}

// ============================================================================
// 控制器介面
// ============================================================================

// Snapshot 回傳目前狀態的深拷貝
func (jm *JobManager) Snapshot() types.State {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return clone(jm.state)
}

// Commit 以新狀態取代目前狀態，persist 為 true 時寫回
func (jm *JobManager) Commit(state types.State, persist bool) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	jm.state = clone(state)
	if !persist {
		return nil
	}
	return jm.saveLocked()
}

// Restore 以外部載入的狀態取代目前狀態（不寫回）
func (jm *JobManager) Restore(state types.State) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.state = clone(state)
}

// SetRunning 控制器開始或停止時呼叫
func (jm *JobManager) SetRunning(running bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.running = running
}

func clone(state types.State) types.State {
	var out types.State
	if err := deepcopy.Copy(&out, &state); err != nil {
		// 同型別複製只會在型別定義錯誤時失敗
		panic(fmt.Sprintf("jobmanager: deep copy failed: %v", err))
	}
	return out
}

func (jm *JobManager) saveLocked() error {
	if jm.saver == nil {
		return nil
	}
	if err := jm.saver.Write(jm.state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// edit 在鎖內套用使用者的修改並寫回
func (jm *JobManager) edit(fn func(s *types.State) error) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.running {
		return ErrRunning
	}
	if err := fn(&jm.state); err != nil {
		return err
	}
	return jm.saveLocked()
}

// ============================================================================
// 佇列編輯
// ============================================================================

// Add 在佇列尾端加入新項目（不與既有項目合併）
func (jm *JobManager) Add(workshopItemID uint32, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if err := jm.checkCraft(workshopItemID); err != nil {
		return err
	}

	return jm.edit(func(s *types.State) error {
		s.ItemQueue = append(s.ItemQueue, types.QueuedItem{WorkshopItemID: workshopItemID, Quantity: quantity})
		log.Info("Added craft to queue", "workshopItemID", workshopItemID, "quantity", quantity)
		return nil
	})
}

// SetQuantity 修改數量，負數視為 0；數量為 0 的項目保留到取用時才移除
func (jm *JobManager) SetQuantity(index, quantity int) error {
	return jm.edit(func(s *types.State) error {
		if index < 0 || index >= len(s.ItemQueue) {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		s.ItemQueue[index].Quantity = max(0, quantity)
		return nil
	})
}

// Remove 移除指定位置的項目
func (jm *JobManager) Remove(index int) error {
	return jm.edit(func(s *types.State) error {
		if index < 0 || index >= len(s.ItemQueue) {
			return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
		}
		s.ItemQueue = append(s.ItemQueue[:index], s.ItemQueue[index+1:]...)
		return nil
	})
}

// CancelCurrent 放棄目前的製作進度
//
// 只清除本地記錄；遊戲中的工坊項目必須由使用者自行在製作台取消或完成。
func (jm *JobManager) CancelCurrent() (bool, error) {
	cancelled := false
	err := jm.edit(func(s *types.State) error {
		if s.CurrentlyCraftedItem == nil {
			return nil
		}
		log.Info("Cancelling current craft", "workshopItemID", s.CurrentlyCraftedItem.WorkshopItemID)
		s.CurrentlyCraftedItem = nil
		cancelled = true
		return nil
	})
	return cancelled, err
}

// ImportQueue 合併項目：已在佇列中的項目增加數量，其餘加在尾端
func (jm *JobManager) ImportQueue(items []types.QueuedItem) (int, error) {
	count := 0
	err := jm.edit(func(s *types.State) error {
		count = mergeInto(s, items)
		return nil
	})
	return count, err
}

func mergeInto(s *types.State, items []types.QueuedItem) int {
	count := 0
	for _, item := range items {
		merged := false
		for i := range s.ItemQueue {
			if s.ItemQueue[i].WorkshopItemID == item.WorkshopItemID {
				s.ItemQueue[i].Quantity += item.Quantity
				merged = true
				break
			}
		}
		if !merged {
			s.ItemQueue = append(s.ItemQueue, item)
		}
		count++
	}
	return count
}

func (jm *JobManager) checkCraft(workshopItemID uint32) error {
	if jm.catalog == nil || !jm.catalog.Loaded() {
		return nil
	}
	if _, ok := jm.catalog.ByWorkshopItemID(workshopItemID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCraft, workshopItemID)
	}
	return nil
}

// ============================================================================
// 預設集
// ============================================================================

// SavePreset 把目前佇列存成預設集，名稱不分大小寫不可重複
func (jm *JobManager) SavePreset(name string) (types.Preset, error) {
	var preset types.Preset
	err := jm.edit(func(s *types.State) error {
		if len(s.ItemQueue) == 0 {
			return ErrEmptyQueue
		}
		for _, p := range s.Presets {
			if strings.EqualFold(p.Name, name) {
				return fmt.Errorf("%w: %q", ErrPresetExists, name)
			}
		}

		preset = types.Preset{
			ID:        uuid.NewString(),
			Name:      name,
			ItemQueue: append([]types.QueuedItem(nil), s.ItemQueue...),
		}
		s.Presets = append(s.Presets, preset)
		log.Info("Saved queue as preset", "name", name, "id", preset.ID)
		return nil
	})
	return preset, err
}

// ImportPreset 把預設集合併進佇列，回傳匯入的項目數
func (jm *JobManager) ImportPreset(idOrName string) (int, error) {
	count := 0
	err := jm.edit(func(s *types.State) error {
		i, ok := findPreset(s.Presets, idOrName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, idOrName)
		}
		count = mergeInto(s, s.Presets[i].ItemQueue)
		return nil
	})
	return count, err
}

// DeletePreset 刪除預設集
func (jm *JobManager) DeletePreset(idOrName string) (types.Preset, error) {
	var deleted types.Preset
	err := jm.edit(func(s *types.State) error {
		i, ok := findPreset(s.Presets, idOrName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrPresetNotFound, idOrName)
		}
		deleted = s.Presets[i]
		s.Presets = append(s.Presets[:i], s.Presets[i+1:]...)
		return nil
	})
	return deleted, err
}

// findPreset 先比對 ID，再不分大小寫比對名稱
func findPreset(presets []types.Preset, idOrName string) (int, bool) {
	for i, p := range presets {
		if p.ID == idOrName {
			return i, true
		}
	}
	for i, p := range presets {
		if strings.EqualFold(p.Name, idOrName) {
			return i, true
		}
	}
	return -1, false
}

// ============================================================================
// 統計
// ============================================================================

// Stats 回傳佇列統計
func (jm *JobManager) Stats() map[string]int {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	current := 0
	if jm.state.CurrentlyCraftedItem != nil {
		current = 1
	}
	return map[string]int{
		"entries":   len(jm.state.ItemQueue),
		"remaining": jm.state.QueueTotal(),
		"current":   current,
		"presets":   len(jm.state.Presets),
	}
}
