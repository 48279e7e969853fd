package snapshot

// ============================================================================
// 職責說明：
// 1. 將佇列、當前製作進度與預設集序列化為 JSON 狀態檔
// 2. 使用原子性寫入（temp file + rename）防止損壞
// 3. 載入時驗證 schema 版本相容性
// 4. 監看外部對狀態檔的修改（見 watch.go）
// ============================================================================

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"

	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var log = slog.Default()

// ============================================================================
// 錯誤定義
// ============================================================================

var (
	ErrCorruptedSnapshot   = errors.New("snapshot file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot schema version is incompatible")
)

// backupTimeFormat 備份檔名中的時間格式
const backupTimeFormat = "20060102_150405.000"

// globMeta 檔名中會被 doublestar 當成樣式的字元
var globMeta = strings.NewReplacer(
	`\`, `\\`,
	`*`, `\*`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
)

// ============================================================================
// 資料結構定義
// ============================================================================

// Manager 狀態檔管理器
type Manager struct {
	path string     // 狀態檔案路徑
	mu   sync.Mutex // 保護檔案操作

	lastDigest uint64 // 本管理器最後一次寫入內容的 xxhash，用於忽略自己觸發的檔案事件
}

// NewManager 建立狀態檔管理器實例
func NewManager(path string) *Manager {
	return &Manager{
		path: path,
	}
}

// ============================================================================
// 核心方法實作
// ============================================================================

// Write 原子性寫入狀態
//
// 使用原子性寫入流程：
// 1. 寫入臨時檔案（.tmp）
// 2. 使用 os.Rename 原子性替換原始檔案
func (m *Manager) Write(state types.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeLocked(state)
}

func (m *Manager) writeLocked(state types.State) error {
	state.SchemaVer = types.CurrentSchemaVer

	// 帶縮排，方便人工閱讀與修改
	jsonBytes, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := m.path + ".tmp"

	if err := os.WriteFile(tmpPath, jsonBytes, 0644); err != nil {
		return fmt.Errorf("failed to write temp state: %w", err)
	}

	if err := os.Rename(tmpPath, m.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename state: %w", err)
	}

	m.lastDigest = xxhash.Sum64(jsonBytes)
	return nil
}

// Load 載入狀態
//
// 行為：
//   - 如果檔案不存在，回傳預設狀態（首次啟動）
//   - 驗證 schema 版本是否相容
//   - 偵測損壞的狀態檔案
func (m *Manager) Load() (types.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.NewState(), nil
		}
		return types.State{}, fmt.Errorf("failed to read state: %w", err)
	}

	return decode(jsonBytes)
}

func decode(jsonBytes []byte) (types.State, error) {
	var state types.State
	if err := json.Unmarshal(jsonBytes, &state); err != nil {
		return types.State{}, fmt.Errorf("%w: %v", ErrCorruptedSnapshot, err)
	}

	if state.SchemaVer != types.CurrentSchemaVer {
		return types.State{}, fmt.Errorf("%w: got %d, want %d",
			ErrIncompatibleVersion, state.SchemaVer, types.CurrentSchemaVer)
	}

	if state.ItemQueue == nil {
		state.ItemQueue = make([]types.QueuedItem, 0)
	}
	if state.Presets == nil {
		state.Presets = make([]types.Preset, 0)
	}
	if cur := state.CurrentlyCraftedItem; cur != nil && cur.ContributedItemsInCurrentPhase == nil {
		cur.ContributedItemsInCurrentPhase = make([]types.PhaseItem, 0)
	}

	return state, nil
}

// Exists 檢查狀態檔案是否存在
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// GetPath 取得狀態檔案路徑
func (m *Manager) GetPath() string {
	return m.path
}

// WriteWithBackup 寫入狀態並保留舊版本備份
//
// 舊檔案會被改名為 <path>.<時間>，只保留最近 keepBackups 個。
func (m *Manager) WriteWithBackup(state types.State, keepBackups int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Exists() {
		backupPath := fmt.Sprintf("%s.%s", m.path, time.Now().Format(backupTimeFormat))
		if err := os.Rename(m.path, backupPath); err != nil {
			return fmt.Errorf("failed to backup old state: %w", err)
		}
	}

	if err := m.writeLocked(state); err != nil {
		return err
	}

	return m.pruneBackups(keepBackups)
}

// Backups 回傳現有的備份檔（由舊到新）
func (m *Manager) Backups() ([]string, error) {
	pattern := globMeta.Replace(filepath.Base(m.path)) + ".2*"
	matches, err := doublestar.Glob(os.DirFS(filepath.Dir(m.path)), pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]string, 0, len(matches))
	for _, name := range matches {
		backups = append(backups, filepath.Join(filepath.Dir(m.path), name))
	}
	sort.Strings(backups)
	return backups, nil
}

func (m *Manager) pruneBackups(keep int) error {
	backups, err := m.Backups()
	if err != nil {
		return err
	}

	for len(backups) > keep {
		if err := os.Remove(backups[0]); err != nil {
			return fmt.Errorf("failed to remove old backup: %w", err)
		}
		log.Debug("Removed old state backup", "path", backups[0])
		backups = backups[1:]
	}
	return nil
}
