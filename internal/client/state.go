// Package client 定義控制器與遊戲介面之間的邊界：
// 即時的材料繳交視窗快照、UI 指令與各種外部查詢。
package client

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotReady 視窗尚未開啟或尚未完成初始化（暫時性，下一個 tick 重試）
	ErrNotReady = errors.New("client: window not ready")
	// ErrMalformed 視窗內容無法解析（暫時性，延遲後重試）
	ErrMalformed = errors.New("client: malformed window state")
)

// collectStepOffset 最後一步是「領取成品」，不算在 StepsTotal 的一般步驟裡，
// 所以 StepsComplete 只會到 StepsTotal-1 就代表整個製作完成。
const collectStepOffset = 1

// hqIcon 遊戲字型中的 HQ 圖示
const hqIcon = "\ue03c"

// CraftItem 材料繳交視窗中的一列
type CraftItem struct {
	ItemID              uint32
	IconID              uint32
	ItemName            string
	CrafterIconID       int32
	ItemCountPerStep    uint32 // 每次繳交的數量
	ItemCountNQ         uint32
	ItemCountHQ         uint32
	Experience          uint32
	StepsComplete       uint32
	StepsTotal          uint32
	Finished            bool
	CrafterMinimumLevel uint32
}

// QuantityComplete 這個階段已繳交的數量
func (i CraftItem) QuantityComplete() uint32 {
	return i.StepsComplete * i.ItemCountPerStep
}

// Done 這一列已不需要再繳交
func (i CraftItem) Done() bool {
	return i.Finished || i.StepsComplete == i.StepsTotal
}

// CraftState 材料繳交視窗的即時快照，每次需要時重新讀取，不跨 tick 快取
type CraftState struct {
	ResultItem    uint32
	StepsComplete uint32 // 已完成的階段數
	StepsTotal    uint32
	Items         []CraftItem
}

// IsPhaseComplete 目前階段所有材料皆已繳交
func (s *CraftState) IsPhaseComplete() bool {
	for _, item := range s.Items {
		if !item.Done() {
			return false
		}
	}
	return true
}

// IsCraftComplete 只剩領取成品
func (s *CraftState) IsCraftComplete() bool {
	return s.StepsComplete+collectStepOffset == s.StepsTotal && s.IsPhaseComplete()
}

// Clone 回傳可安全修改的副本
func (s *CraftState) Clone() *CraftState {
	c := *s
	c.Items = append([]CraftItem(nil), s.Items...)
	return &c
}

// Item 依物品 ID 找出該列的索引
func (s *CraftState) Item(itemID uint32) (int, bool) {
	for i, item := range s.Items {
		if item.ItemID == itemID {
			return i, true
		}
	}
	return -1, false
}

// ParseHQCount 解析繳交視窗的 "NQ / HQ" 數量文字，回傳 HQ 數量
//
// 文字中可能包含 HQ 圖示字元與千分位符號；沒有斜線時回傳 0。
func ParseHQCount(s string) (uint32, error) {
	parts := strings.Split(strings.ReplaceAll(s, hqIcon, ""), "/")
	if len(parts) < 2 {
		return 0, nil
	}

	raw := strings.TrimSpace(strings.NewReplacer(",", "", ".", "").Replace(parts[1]))
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: hq count %q", ErrMalformed, s)
	}
	return uint32(n), nil
}
