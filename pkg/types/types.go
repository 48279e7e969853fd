// Package types 定義了 workshop-queue 系統中持久化的核心領域模型
package types

// CurrentSchemaVer 狀態檔案的資料結構版本
const CurrentSchemaVer = 1

// QueuedItem 佇列中的一個工坊製作請求
type QueuedItem struct {
	WorkshopItemID uint32 `json:"workshop_item_id"` // 工坊製作項目 ID
	Quantity       int    `json:"quantity"`         // 剩餘數量（>= 0，為 0 的項目在取用時才移除）
}

// PhaseItem 當前階段單一材料的已繳交數量
type PhaseItem struct {
	ItemID           uint32 `json:"item_id"`
	QuantityComplete uint32 `json:"quantity_complete"`
}

// CurrentItem 正在製作中的工坊項目（CraftProgress）
//
// ContributedItemsInCurrentPhase 只記錄「當前階段」的繳交進度，
// 每完成一個階段就會被清空。
type CurrentItem struct {
	WorkshopItemID                 uint32      `json:"workshop_item_id"`
	StartedCrafting                bool        `json:"started_crafting"`
	PhasesComplete                 uint32      `json:"phases_complete"`
	ContributedItemsInCurrentPhase []PhaseItem `json:"contributed_items_in_current_phase"`
}

// Preset 已儲存的佇列範本
type Preset struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	ItemQueue []QueuedItem `json:"item_queue"`
}

// State 持久化的完整狀態（由 snapshot.Store 讀寫）
type State struct {
	SchemaVer            int          `json:"schema_ver"`
	CurrentlyCraftedItem *CurrentItem `json:"currently_crafted_item,omitempty"`
	ItemQueue            []QueuedItem `json:"item_queue"`
	Presets              []Preset     `json:"presets"`

	EnableRepairKitCalculator    bool `json:"enable_repair_kit_calculator"`
	EnableCeruleumTankCalculator bool `json:"enable_ceruleum_tank_calculator"`
}

// NewState 建立首次啟動時的預設狀態
func NewState() State {
	return State{
		SchemaVer:                    CurrentSchemaVer,
		ItemQueue:                    make([]QueuedItem, 0),
		Presets:                      make([]Preset, 0),
		EnableRepairKitCalculator:    true,
		EnableCeruleumTankCalculator: true,
	}
}

// QueueTotal 佇列中所有項目的數量總和
func (s State) QueueTotal() int {
	total := 0
	for _, item := range s.ItemQueue {
		total += item.Quantity
	}
	return total
}

// IngredientType 材料分類
type IngredientType string

const (
	IngredientCraftable  IngredientType = "craftable"  // 可由配方製作
	IngredientGatherable IngredientType = "gatherable" // 可採集或由雇員探險取得
	IngredientOther      IngredientType = "other"      // 其他來源
	IngredientShopItem   IngredientType = "shop"       // 可直接向商店購買
)

// Ingredient 材料清單中的一項
type Ingredient struct {
	ItemID        uint32         `json:"item_id"`
	IconID        uint32         `json:"icon_id,omitempty"`
	Name          string         `json:"name"`
	TotalQuantity int            `json:"total_quantity"`
	Type          IngredientType `json:"type"`
}
