// ============================================================================
// Workshop Queue 工坊目錄 - 已知製作項目的唯讀表
// ============================================================================
//
// Package: internal/catalog
// 文件: catalog.go
// 功能: 保存所有工坊製作項目（多階段材料需求），供控制器與材料解析使用
//
// 生命週期:
//   1. New() 建立空目錄
//   2. LoadAsync() 在背景 goroutine 載入資料後呼叫 Replace()
//   3. 載入完成前所有查詢都回傳「找不到」，呼叫端必須容忍空目錄
//
// 並發安全:
//   - crafts 以整份替換的方式更新，讀取端拿到的是不可變的切片
//   - 使用 sync.RWMutex 保護替換動作
//
// ============================================================================

package catalog

import (
	"sort"
	"strings"
	"sync"
)

// Category 工坊製作分類（對應製作筆記本的分頁）
type Category uint32

// CraftItem 某階段需要繳交的一種材料
type CraftItem struct {
	ItemID       uint32 `yaml:"item_id"`
	Name         string `yaml:"name"`
	IconID       uint32 `yaml:"icon_id"`
	SetQuantity  int    `yaml:"set_quantity"`  // 每一組的數量
	SetsRequired int    `yaml:"sets_required"` // 需要的組數
}

// TotalQuantity 此材料在該階段需要的總數量
func (i CraftItem) TotalQuantity() int {
	return i.SetQuantity * i.SetsRequired
}

// Phase 製作階段，順序即完成順序
type Phase struct {
	Name  string      `yaml:"name"`
	Items []CraftItem `yaml:"items"`
}

// Craft 一個工坊製作項目的完整定義
type Craft struct {
	WorkshopItemID uint32   `yaml:"workshop_item_id"`
	ResultItem     uint32   `yaml:"result_item"`
	Name           string   `yaml:"name"`
	IconID         uint32   `yaml:"icon_id"`
	Category       Category `yaml:"category"`
	Type           uint32   `yaml:"type"`
	Phases         []Phase  `yaml:"phases"`
}

// Catalog 工坊目錄
type Catalog struct {
	mu     sync.RWMutex
	crafts []Craft
	loaded bool
}

// New 建立空的目錄
func New() *Catalog {
	return &Catalog{crafts: make([]Craft, 0)}
}

// NewWith 以既有資料建立已載入的目錄（主要用於測試與模擬）
func NewWith(crafts []Craft) *Catalog {
	c := New()
	c.Replace(crafts)
	return c
}

// Replace 以新資料整份替換目錄內容
func (c *Catalog) Replace(crafts []Craft) {
	sorted := make([]Craft, len(crafts))
	copy(sorted, crafts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].WorkshopItemID < sorted[j].WorkshopItemID
	})

	c.mu.Lock()
	c.crafts = sorted
	c.loaded = true
	c.mu.Unlock()
}

// Loaded 目錄是否已完成載入
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Crafts 回傳所有製作項目（依 WorkshopItemID 排序）
func (c *Catalog) Crafts() []Craft {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.crafts
}

// ByWorkshopItemID 依工坊項目 ID 查詢
func (c *Catalog) ByWorkshopItemID(id uint32) (Craft, bool) {
	for _, craft := range c.Crafts() {
		if craft.WorkshopItemID == id {
			return craft, true
		}
	}
	return Craft{}, false
}

// ByResultItem 依成品物品 ID 查詢
func (c *Catalog) ByResultItem(itemID uint32) (Craft, bool) {
	for _, craft := range c.Crafts() {
		if craft.ResultItem == itemID {
			return craft, true
		}
	}
	return Craft{}, false
}

// ByName 依名稱查詢（不分大小寫）
func (c *Catalog) ByName(name string) (Craft, bool) {
	for _, craft := range c.Crafts() {
		if strings.EqualFold(craft.Name, name) {
			return craft, true
		}
	}
	return Craft{}, false
}

// Search 回傳名稱包含 filter 的項目（不分大小寫）
func (c *Catalog) Search(filter string) []Craft {
	filter = strings.ToLower(filter)
	var result []Craft
	for _, craft := range c.Crafts() {
		if strings.Contains(strings.ToLower(craft.Name), filter) {
			result = append(result, craft)
		}
	}
	return result
}

// Name 回傳項目名稱，找不到時回傳佔位字串
func (c *Catalog) Name(workshopItemID uint32) string {
	if craft, ok := c.ByWorkshopItemID(workshopItemID); ok {
		return craft.Name
	}
	return "(unknown craft)"
}
