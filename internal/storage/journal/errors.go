package journal

// ============================================================================
// 執行日誌錯誤定義
// ============================================================================

import (
	"errors"
	"fmt"
)

var (
	// ErrCorrupted 日誌中有無法解析的行
	ErrCorrupted = errors.New("journal: file is corrupted")

	// ErrChecksumMismatch 記錄內容與校驗和不符
	ErrChecksumMismatch = errors.New("journal: checksum mismatch")

	// ErrClosed 日誌已關閉
	ErrClosed = errors.New("journal: already closed")
)

// ChecksumError 校驗和錯誤與詳細資訊
type ChecksumError struct {
	Seq      uint64 // 出錯記錄的序號
	Expected uint64 // 依內容重新計算的值
	Actual   uint64 // 檔案中記錄的值
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("journal: checksum mismatch at seq=%d (expected=%#x, got=%#x)",
		e.Seq, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}

// CorruptionError 日誌損毀
type CorruptionError struct {
	Line   int   // 從 1 開始的行號
	Offset int64 // 該行在檔案中的位元組位移
	Cause  error // 底層解析錯誤
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("journal: corrupted record at line %d (offset %d): %v", e.Line, e.Offset, e.Cause)
}

func (e *CorruptionError) Unwrap() []error {
	return []error{ErrCorrupted, e.Cause}
}
