package controller

// ============================================================================
// 階段處理函式
// 職責：每個函式讀取 input（當前時間、狀態深拷貝、遊戲介面的唯讀查詢），
//       回傳 outcome 描述要做的事；真正的副作用全部由 Controller.apply 執行
// ============================================================================

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/internal/storage/journal"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// 各步驟之後等待遊戲介面反應的時間
const (
	selectDelay          = 100 * time.Millisecond
	contributeDelay      = time.Second
	phaseDelay           = 3 * time.Second
	collectDelay         = 250 * time.Millisecond
	deliveryDoneDelay    = 500 * time.Millisecond
	deliveryNextDelay    = time.Second
	collectFollowUpDelay = 500 * time.Millisecond
	retryDelay           = time.Second
	fallbackDelay        = 200 * time.Millisecond
)

// 中止執行的原因（日誌與指標標籤）
const (
	AbortMissingMaterials = "missing_materials"
	AbortFragmentedStacks = "fragmented_stacks"
	AbortRecipeNotFound   = "recipe_not_found"
	AbortUnknownCraft     = "unknown_craft"
)

// input 處理函式看得到的一切
type input struct {
	now     time.Time
	stage   Stage
	state   types.State // 深拷貝，可直接修改後放進 outcome
	craft   catalog.Craft
	known   bool // craft 是否在目錄中找到
	catalog *catalog.Catalog
	ui      client.UI
	inv     client.Inventory
	strings *client.GameStrings
	station client.ObjectHandle

	contributing uint32 // 正在繳交的材料
}

type fallbackChange int

const (
	fallbackKeep fallbackChange = iota
	fallbackArm
	fallbackClear
)

type turnInChange int

const (
	turnInKeep turnInChange = iota
	turnInSuppress
	turnInRestore
)

// outcome 處理函式的決定
type outcome struct {
	next         Stage // stageAny 表示維持目前階段
	commands     []client.Command
	state        *types.State
	persist      bool
	delay        time.Duration
	fallback     fallbackChange
	turnIn       turnInChange
	contributing *uint32
	complete     *bool // 即時快照顯示只剩領取成品
	diagnostics  []string
	journal      []journal.Entry
}

// abort 中止執行：顯示一則錯誤並記錄原因
func (o outcome) abort(workshopItemID uint32, reason, msg string) outcome {
	log.Error(msg, "reason", reason)
	o.next = StageRequestStop
	o.diagnostics = append(o.diagnostics, msg)
	o.journal = append(o.journal, journal.Entry{
		Type:           journal.RecordRunAborted,
		WorkshopItemID: workshopItemID,
		Detail:         reason,
	})
	return o
}

func (o outcome) withState(s *types.State) outcome {
	o.state = s
	o.persist = true
	return o
}

type handler func(in input) outcome

// tickHandlers tick 時依目前階段呼叫；不在表中的階段等待事件推進
var tickHandlers = map[Stage]handler{
	StageTakeItemFromQueue:        takeItemFromQueue,
	StageTargetFabricationStation: targetFabricationStation,
	StageOpenCraftingLog:          openCraftingLog,
	StageSelectCraftCategory:      selectCraftCategory,
	StageSelectCraft:              selectCraft,
	StageConfirmCraft:             confirmCraft,
	StageSelectCraftBranch:        selectCraftBranch,
	StageContributeMaterials:      contributeMaterials,
}

// ============================================================================
// 佇列與製作台
// ============================================================================

// checkContinueWithDelivery 恢復執行時材料繳交視窗已經開著
//
// 視窗屬於目前的製作時直接回到繳交；無法判斷時延遲一秒照常進行。
func checkContinueWithDelivery(in input) (bool, time.Duration) {
	cur := in.state.CurrentlyCraftedItem
	if cur == nil {
		return false, 0
	}

	cs, err := in.ui.MaterialDelivery()
	if errors.Is(err, client.ErrNotReady) {
		return false, 0
	}

	log.Warn("Material delivery window is open, although unexpected... checking current craft")
	if err != nil || cs.ResultItem == 0 {
		log.Error("Unable to read craft state", "error", err)
		return false, retryDelay
	}

	craft, ok := in.catalog.ByResultItem(cs.ResultItem)
	if !ok || craft.WorkshopItemID != cur.WorkshopItemID {
		log.Error("Unable to match currently crafted item with game state",
			"resultItem", cs.ResultItem, "workshopItemID", cur.WorkshopItemID)
		return false, retryDelay
	}

	log.Info("Delivering materials for current active craft, switching to delivery")
	return true, 0
}

func takeItemFromQueue(in input) outcome {
	resume, delay := checkContinueWithDelivery(in)
	if resume {
		return outcome{next: StageContributeMaterials}
	}

	st := in.state
	if st.CurrentlyCraftedItem != nil {
		return outcome{next: StageTargetFabricationStation, delay: delay}
	}

	jobmanager.TakeItemFromQueue(&st)
	out := outcome{delay: delay}.withState(&st)
	if st.CurrentlyCraftedItem == nil {
		log.Info("Queue is empty, stopping")
		out.next = StageRequestStop
		return out
	}

	log.Info("Took craft from queue", "workshopItemID", st.CurrentlyCraftedItem.WorkshopItemID)
	out.next = StageTargetFabricationStation
	out.journal = []journal.Entry{{
		Type:           journal.RecordCraftTaken,
		WorkshopItemID: st.CurrentlyCraftedItem.WorkshopItemID,
	}}
	return out
}

func targetFabricationStation(in input) outcome {
	cur := in.state.CurrentlyCraftedItem
	if cur == nil {
		log.Warn("No current craft at the fabrication station")
		return outcome{next: StageTakeItemFromQueue}
	}

	next := StageOpenCraftingLog
	if cur.StartedCrafting {
		next = StageSelectCraftBranch
	}
	return outcome{
		next:     next,
		commands: []client.Command{client.InteractWithObject(in.station)},
	}
}

// firstMenuChoice 選單第一項符合 match 時回傳其文字
func firstMenuChoice(ui client.UI, match func(string) bool) (string, bool) {
	text, ok := ui.MenuChoiceText(0)
	if !ok || !match(text) {
		return "", false
	}
	return text, true
}

// ============================================================================
// 開始製作
// ============================================================================

func openCraftingLog(in input) outcome {
	_, ok := firstMenuChoice(in.ui, func(s string) bool { return s == in.strings.ViewCraftingLog })
	if !ok {
		return outcome{}
	}
	return outcome{
		next:     StageSelectCraftCategory,
		commands: []client.Command{client.SelectMenuChoice(0)},
	}
}

func unknownCraft(in input) outcome {
	id := uint32(0)
	if cur := in.state.CurrentlyCraftedItem; cur != nil {
		id = cur.WorkshopItemID
	}
	return outcome{}.abort(id, AbortUnknownCraft,
		fmt.Sprintf("Workshop item %d is not in the catalog.", id))
}

func selectCraftCategory(in input) outcome {
	if !in.ui.CraftingLogOpen() {
		return outcome{}
	}
	if !in.known {
		return unknownCraft(in)
	}

	log.Info("Selecting category", "category", in.craft.Category, "type", in.craft.Type)
	return outcome{
		next:     StageSelectCraft,
		delay:    selectDelay,
		commands: []client.Command{client.SelectRecipeCategory(uint32(in.craft.Category), in.craft.Type)},
	}
}

func selectCraft(in input) outcome {
	choices, ok := in.ui.VisibleRecipeChoices()
	if !ok {
		return outcome{}
	}
	if !in.known {
		return unknownCraft(in)
	}

	visible := false
	for _, choice := range choices {
		if choice.WorkshopItemID == in.craft.WorkshopItemID {
			visible = true
			break
		}
	}
	if !visible {
		return outcome{}.abort(in.craft.WorkshopItemID, AbortRecipeNotFound,
			fmt.Sprintf("Could not find %s in current list, is it unlocked?", in.craft.Name))
	}

	log.Info("Selecting craft", "workshopItemID", in.craft.WorkshopItemID)
	return outcome{
		next:     StageConfirmCraft,
		delay:    selectDelay,
		commands: []client.Command{client.SelectRecipe(in.craft.WorkshopItemID)},
	}
}

func confirmCraft(in input) outcome {
	text, ok := in.ui.ConfirmationPromptText()
	if !ok || !strings.HasPrefix(text, in.strings.ConfirmCraftPrefix) {
		return outcome{}
	}

	st := in.state
	cur := st.CurrentlyCraftedItem
	if cur == nil {
		return outcome{next: StageRequestStop}
	}
	cur.StartedCrafting = true

	out := outcome{
		next:     StageTargetFabricationStation,
		commands: []client.Command{client.ConfirmYesNo(0)},
		journal:  []journal.Entry{{Type: journal.RecordCraftStarted, WorkshopItemID: cur.WorkshopItemID}},
	}
	return out.withState(&st)
}

// ============================================================================
// 製作台選單
// ============================================================================

func selectCraftBranch(in input) outcome {
	gs := in.strings
	text, ok := in.ui.MenuChoiceText(0)
	if !ok {
		return outcome{}
	}
	selectFirst := []client.Command{client.SelectMenuChoice(0)}

	switch {
	case strings.HasPrefix(text, gs.ContributeMaterials):
		return outcome{next: StageContributeMaterials, delay: contributeDelay, commands: selectFirst}

	case strings.HasPrefix(text, gs.AdvancePhase):
		log.Info("Phase is complete")
		st := in.state
		cur := st.CurrentlyCraftedItem
		if cur == nil {
			return outcome{next: StageRequestStop}
		}
		jobmanager.CompletePhase(cur)
		out := outcome{
			next:     StageTargetFabricationStation,
			delay:    phaseDelay,
			commands: selectFirst,
			journal: []journal.Entry{{
				Type:           journal.RecordPhaseAdvanced,
				WorkshopItemID: cur.WorkshopItemID,
				Quantity:       cur.PhasesComplete,
			}},
		}
		return out.withState(&st)

	case strings.HasPrefix(text, gs.CompleteConstruction):
		log.Info("Item is almost complete, confirming last cutscene")
		return outcome{next: StageTargetFabricationStation, delay: phaseDelay, commands: selectFirst}

	case text == gs.CollectProduct:
		log.Info("Item is complete")
		return outcome{next: StageConfirmCollectProduct, delay: collectDelay, commands: selectFirst}
	}
	return outcome{}
}

// ============================================================================
// 材料繳交
// ============================================================================

func contributeMaterials(in input) outcome {
	cs, err := in.ui.MaterialDelivery()
	if errors.Is(err, client.ErrNotReady) {
		return outcome{}
	}
	if err != nil || cs.ResultItem == 0 {
		log.Warn("Could not parse craft state", "error", err)
		return outcome{delay: retryDelay}
	}

	st := in.state
	cur := st.CurrentlyCraftedItem
	if cur == nil {
		log.Error("Contributing materials without a current craft")
		return outcome{next: StageRequestStop}
	}

	complete := cs.IsCraftComplete()
	out := outcome{complete: &complete}
	if jobmanager.UpdateFromCraftState(cur, cs) {
		log.Info("Saving updated current craft information", "workshopItemID", cur.WorkshopItemID)
		out = out.withState(&st)
	}

	for i, item := range cs.Items {
		if item.Done() {
			continue
		}

		if !in.inv.HasItemInSingleStack(item.ItemID, item.ItemCountPerStep) {
			log.Error("Can't contribute item to craft, couldn't find enough in a single inventory slot",
				"itemID", item.ItemID, "count", item.ItemCountPerStep)
			if in.inv.CountItem(item.ItemID) < int(item.ItemCountPerStep) {
				return out.abort(cur.WorkshopItemID, AbortMissingMaterials,
					fmt.Sprintf("You don't have the needed %dx %s to continue.", item.ItemCountPerStep, item.ItemName))
			}
			return out.abort(cur.WorkshopItemID, AbortFragmentedStacks,
				fmt.Sprintf("You don't have %dx %s in a single stack, you need to merge the items in your inventory manually to continue.",
					item.ItemCountPerStep, item.ItemName))
		}

		log.Info("Contributing", "itemID", item.ItemID, "name", item.ItemName, "count", item.ItemCountPerStep)
		itemID := item.ItemID
		out.next = StageOpenRequestItemWindow
		out.turnIn = turnInSuppress
		out.contributing = &itemID
		out.fallback = fallbackArm
		out.commands = []client.Command{client.ContributeMaterial(i, item.ItemCountPerStep)}
		return out
	}

	if complete {
		log.Info("All materials are delivered, the craft is ready to collect")
	} else {
		log.Info("All materials of the current phase are delivered")
	}
	out.next = StageTargetFabricationStation
	return out
}

// deliveryFollowUp 確認繳交之後更新本地進度
//
// 讀到的是確認前的視窗內容，所以正在繳交的那一列要自行加一。
// 讀取失敗時回到繳交階段，由 UpdateFromCraftState 以視窗內容修正。
func deliveryFollowUp(in input) outcome {
	out := outcome{commands: []client.Command{client.ConfirmYesNo(0)}}

	cs, err := in.ui.MaterialDelivery()
	if err != nil || cs.ResultItem == 0 {
		log.Warn("Could not parse craft state", "error", err)
		out.next = StageContributeMaterials
		out.delay = deliveryNextDelay
		return out
	}

	cs = cs.Clone()
	idx, ok := cs.Item(in.contributing)
	if !ok {
		log.Warn("Contributed item is not part of the current phase", "itemID", in.contributing)
		out.next = StageContributeMaterials
		out.delay = deliveryNextDelay
		return out
	}
	cs.Items[idx].StepsComplete++
	item := cs.Items[idx]
	complete := cs.IsCraftComplete()
	out.complete = &complete

	st := in.state
	workshopItemID := uint32(0)
	if cur := st.CurrentlyCraftedItem; cur != nil {
		workshopItemID = cur.WorkshopItemID
	}
	out.journal = []journal.Entry{{
		Type:           journal.RecordContributed,
		WorkshopItemID: workshopItemID,
		ItemID:         item.ItemID,
		Quantity:       item.ItemCountPerStep,
	}}

	if cs.IsPhaseComplete() {
		out.next = StageTargetFabricationStation
		out.delay = deliveryDoneDelay
		return out
	}

	if cur := st.CurrentlyCraftedItem; cur != nil &&
		jobmanager.RecordContribution(cur, item.ItemID, item.QuantityComplete()) {
		out = out.withState(&st)
	}
	out.next = StageContributeMaterials
	out.delay = deliveryNextDelay
	return out
}

// ============================================================================
// 生命週期事件與是/否對話框
// ============================================================================

func requestWindowSetup(_ input, entryCount int) outcome {
	if entryCount != 1 {
		return outcome{}
	}
	return outcome{
		next:     StageOpenRequestItemSelect,
		fallback: fallbackClear,
		commands: []client.Command{client.OpenRequestItemSelect()},
	}
}

func itemSelectMenuShown(_ input) outcome {
	return outcome{
		next:     StageConfirmRequestItemWindow,
		commands: []client.Command{client.SelectRequestItem(0)},
	}
}

func requestWindowRefreshed(_ input, entryCount int) outcome {
	if entryCount != 1 {
		return outcome{}
	}
	return outcome{
		next:     StageConfirmMaterialDelivery,
		turnIn:   turnInRestore,
		commands: []client.Command{client.HandOverRequestItems()},
	}
}

// yesNoShown 依目前階段回應是/否對話框；text 已移除換行
func yesNoShown(in input, text string) outcome {
	gs := in.strings
	switch {
	case in.stage == StageConfirmMaterialDelivery && text == gs.TurnInHighQualityItem:
		log.Info("Selecting 'yes'", "text", text)
		return outcome{commands: []client.Command{client.ConfirmYesNo(0)}}

	case in.stage == StageConfirmMaterialDelivery && gs.ContributeItems.MatchString(text):
		log.Info("Selecting 'yes'", "text", text)
		return deliveryFollowUp(in)

	case in.stage == StageConfirmCollectProduct && gs.RetrieveFinishedItem.MatchString(text):
		log.Info("Selecting 'yes'", "text", text)
		st := in.state
		out := outcome{
			next:     StageTakeItemFromQueue,
			delay:    collectFollowUpDelay,
			commands: []client.Command{client.ConfirmYesNo(0)},
		}
		if cur := st.CurrentlyCraftedItem; cur != nil {
			out.journal = []journal.Entry{{Type: journal.RecordCraftCollected, WorkshopItemID: cur.WorkshopItemID}}
		}
		st.CurrentlyCraftedItem = nil
		return out.withState(&st)
	}
	return outcome{}
}
