package journal

// ============================================================================
// 執行日誌型別定義
// 職責：定義日誌記錄的種類與格式
// ============================================================================

// RecordType 日誌記錄種類
type RecordType string

const (
	RecordCraftTaken     RecordType = "CRAFT_TAKEN"     // 從佇列取出一個製作
	RecordCraftStarted   RecordType = "CRAFT_STARTED"   // 在製作台確認開始製作
	RecordPhaseAdvanced  RecordType = "PHASE_ADVANCED"  // 進入下一個階段
	RecordContributed    RecordType = "CONTRIBUTED"     // 完成一次材料繳交
	RecordCraftCollected RecordType = "CRAFT_COLLECTED" // 領取成品
	RecordRunAborted     RecordType = "RUN_ABORTED"     // 因無法恢復的狀況中止執行
)

// Entry 要寫入的一筆記錄內容（序號、時間與校驗和由 Journal 補上）
type Entry struct {
	Type           RecordType
	WorkshopItemID uint32
	ItemID         uint32
	Quantity       uint32
	Detail         string
}

// Record 日誌檔中的一行
type Record struct {
	Seq            uint64     `json:"seq"`       // 單調遞增
	Type           RecordType `json:"type"`      // 記錄種類
	WorkshopItemID uint32     `json:"workshop_item_id"`
	ItemID         uint32     `json:"item_id,omitempty"`
	Quantity       uint32     `json:"quantity,omitempty"`
	Detail         string     `json:"detail,omitempty"`
	Timestamp      int64      `json:"timestamp"` // Unix 毫秒
	Checksum       uint64     `json:"checksum"`  // xxhash64
}

// Handler 重放時對每筆記錄呼叫；回傳錯誤會中止重放
type Handler func(record Record) error
