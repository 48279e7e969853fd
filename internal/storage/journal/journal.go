package journal

// ============================================================================
// 執行日誌核心實作
// 職責：
// 1. 以 JSON Lines 追加記錄控制器的里程碑（append-only）
// 2. 重放並驗證每筆記錄的校驗和，供 history 指令使用
// 3. 支援日誌旋轉（保留舊檔）
//
// 日誌只是紀錄，不參與恢復：進度以狀態檔為準。
// ============================================================================

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
)

var log = slog.Default()

// FileInterface 日誌寫入所需的檔案操作，方便在測試中模擬寫入失敗
type FileInterface interface {
	Write(p []byte) (n int, err error)
	Sync() error
	Close() error
}

// Journal 執行日誌
type Journal struct {
	mu           sync.Mutex
	file         FileInterface
	path         string
	seq          uint64
	clock        clock.Clock
	syncOnAppend bool
	closed       bool
}

// Open 建立或開啟日誌
//
// 檔案已存在時會掃描到最後一筆記錄並延續序號；
// 最後一行若是寫到一半的殘缺記錄會被忽略。
func Open(path string, clk clock.Clock, syncOnAppend bool) (*Journal, error) {
	if clk == nil {
		clk = clock.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	seq, err := lastSeq(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	return &Journal{
		file:         file,
		path:         path,
		seq:          seq,
		clock:        clk,
		syncOnAppend: syncOnAppend,
	}, nil
}

// Append 追加一筆記錄
func (j *Journal) Append(e Entry) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return Record{}, ErrClosed
	}

	record := Record{
		Seq:            j.seq + 1,
		Type:           e.Type,
		WorkshopItemID: e.WorkshopItemID,
		ItemID:         e.ItemID,
		Quantity:       e.Quantity,
		Detail:         e.Detail,
		Timestamp:      j.clock.Now().UnixMilli(),
	}
	record.Checksum = CalculateChecksum(record)

	line, err := json.Marshal(record)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode journal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := j.file.Write(line); err != nil {
		return Record{}, fmt.Errorf("failed to append journal record seq=%d: %w", record.Seq, err)
	}
	if j.syncOnAppend {
		if err := j.file.Sync(); err != nil {
			return Record{}, fmt.Errorf("failed to sync journal: %w", err)
		}
	}

	j.seq = record.Seq
	return record, nil
}

// Replay 依序重放所有記錄
func (j *Journal) Replay(handler Handler) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return ReplayFile(j.path, handler)
}

// Rotate 把目前的日誌改名保存，並開始新的檔案（序號歸零）
//
// 回傳舊檔的新路徑。
func (j *Journal) Rotate() (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return "", ErrClosed
	}
	if err := j.file.Close(); err != nil {
		return "", err
	}

	backupPath := j.path + "." + j.clock.Now().Format("20060102_150405")
	if err := os.Rename(j.path, backupPath); err != nil {
		return "", err
	}

	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		j.closed = true
		return "", err
	}
	j.file = file
	j.seq = 0

	log.Info("Journal rotated", "backup", backupPath)
	return backupPath, nil
}

// Close 關閉日誌，之後的 Append 會回傳 ErrClosed
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.file.Sync(); err != nil {
		_ = j.file.Close()
		return err
	}
	return j.file.Close()
}

// LastSeq 最後一筆記錄的序號
func (j *Journal) LastSeq() uint64 {
	if j == nil {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// Path 日誌檔路徑
func (j *Journal) Path() string {
	return j.path
}

// ============================================================================
// 檔案讀取
// ============================================================================

// ReplayFile 重放指定的日誌檔，不需要開啟 Journal（history 指令使用）
//
// 檔案不存在視為空日誌。遇到無法解析的行回傳 *CorruptionError，
// 校驗和不符回傳 *ChecksumError。
func ReplayFile(path string, handler Handler) error {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var offset int64
	line := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		line++
		start := offset
		offset += int64(len(raw)) + 1

		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}

		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			return &CorruptionError{Line: line, Offset: start, Cause: err}
		}
		if expected := CalculateChecksum(record); expected != record.Checksum {
			return &ChecksumError{Seq: record.Seq, Expected: expected, Actual: record.Checksum}
		}
		if err := handler(record); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ReadAll 讀出整份日誌
func ReadAll(path string) ([]Record, error) {
	var records []Record
	err := ReplayFile(path, func(r Record) error {
		records = append(records, r)
		return nil
	})
	return records, err
}

// lastSeq 掃描現有檔案取得最後一個有效序號
func lastSeq(path string) (uint64, error) {
	var seq uint64
	err := ReplayFile(path, func(r Record) error {
		seq = r.Seq
		return nil
	})

	var corrupt *CorruptionError
	if errors.As(err, &corrupt) {
		log.Warn("Ignoring unreadable journal tail", "path", path, "line", corrupt.Line, "error", corrupt.Cause)
		return seq, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to scan journal: %w", err)
	}
	return seq, nil
}
