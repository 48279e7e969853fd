package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// Watch 監看狀態檔，其他行程修改後以新內容呼叫 onChange
//
// 監看的是所在目錄，因為原子性寫入會以 rename 取代檔案。
// 本管理器自己寫入的內容不會觸發 onChange；無法解析的內容只記錄警告。
// 阻塞直到 ctx 結束。
func (m *Manager) Watch(ctx context.Context, onChange func(types.State)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(m.path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if state, changed := m.reloadIfForeign(); changed {
				onChange(state)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("State file watcher error", "error", err)
		}
	}
}

// reloadIfForeign 讀取狀態檔，內容與最後一次自己寫入的相同時回傳 false
func (m *Manager) reloadIfForeign() (types.State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jsonBytes, err := os.ReadFile(m.path)
	if err != nil {
		// rename 過程中檔案可能暫時不存在
		return types.State{}, false
	}

	digest := xxhash.Sum64(jsonBytes)
	if digest == m.lastDigest {
		return types.State{}, false
	}

	state, err := decode(jsonBytes)
	if err != nil {
		log.Warn("Ignoring unreadable state file change", "path", m.path, "error", err)
		return types.State{}, false
	}

	m.lastDigest = digest
	log.Info("State file changed externally", "path", m.path)
	return state, true
}
