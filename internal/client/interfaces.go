package client

// RecipeChoice 工坊製作筆記本中目前可見的一個項目
type RecipeChoice struct {
	WorkshopItemID uint32
	Name           string
}

// ObjectHandle 場景中的物件（製作台）
type ObjectHandle struct {
	ID     uint64
	DataID uint32
}

// UI 讀取目前的視窗狀態
type UI interface {
	// MaterialDelivery 讀取材料繳交視窗；未開啟回傳 ErrNotReady，無法解析回傳 ErrMalformed
	MaterialDelivery() (*CraftState, error)
	CraftingLogOpen() bool
	// VisibleRecipeChoices 製作筆記本尚未就緒時 ok 為 false
	VisibleRecipeChoices() ([]RecipeChoice, bool)
	// MenuChoiceText 選單沒有開啟或 index 不存在時 ok 為 false
	MenuChoiceText(index int) (string, bool)
	// ConfirmationPromptText 目前是/否對話框的文字（已移除換行）
	ConfirmationPromptText() (string, bool)
}

// Commands 對遊戲介面送出的操作
type Commands interface {
	SelectMenuChoice(index int) error
	ConfirmYesNo(choice int) error
	SelectRecipeCategory(category, craftType uint32) error
	SelectRecipe(workshopItemID uint32) error
	ContributeMaterial(slot int, count uint32) error
	OpenRequestItemSelect() error
	SelectRequestItem(slot int) error
	HandOverRequestItems() error
	InteractWithObject(obj ObjectHandle) error
}

// Inventory 背包查詢
type Inventory interface {
	CountItem(itemID uint32) int
	// HasItemInSingleStack 是否有「單一堆疊」至少 minCount 個（不跨堆疊加總）
	HasItemInSingleStack(itemID uint32, minCount uint32) bool
}

// Automation 暫停其他自動化外掛，全部都是盡力而為
type Automation interface {
	// SuppressForRun 整個執行期間停用自動確認類外掛
	SuppressForRun() error
	RestoreRun() error
	// SuppressDuringTurnIn 只在繳交材料時停用自動對話推進
	SuppressDuringTurnIn() error
	RestoreTurnIn() error
	Suppressed() bool
}

// World 角色所在位置與狀態
type World interface {
	LoggedIn() bool
	Territory() uint16
	// Busy 正在讀取場景或處於任務中
	Busy() bool
	// NearestObject 找出最近的指定物件及距離
	NearestObject(dataIDs []uint32) (ObjectHandle, float64, bool)
}

// Notifier 顯示給使用者的訊息
type Notifier interface {
	Print(msg string)
	PrintError(msg string)
}

// Listener 接收遊戲介面的生命週期通知（視窗開啟、刷新、是/否對話框）
//
// 實作必須不阻塞；控制器把它們轉成事件放進自己的佇列。
type Listener interface {
	RequestWindowSetup(entryCount int)
	ItemSelectMenuShown()
	RequestWindowRefreshed(entryCount int)
	YesNoShown(text string)
}
