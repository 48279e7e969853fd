package jobmanager

// ============================================================================
// 職責說明：
// 1. 從佇列取出下一個製作項目
// 2. 以繳交視窗的即時快照修正本地進度（repair-on-read）
// 3. 記錄繳交與階段完成
//
// 這些函式只修改傳入的值，由呼叫端決定何時寫回。
// ============================================================================

import (
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// TakeItemFromQueue 沒有進行中的製作時，從佇列最前面取出一個
//
// 數量為 0 的項目在這裡才被移除；數量為 1 的項目取出後整筆移除。
// 回傳值表示是否建立了新的製作（佇列耗盡時為 false）。
// 已有進行中的製作時不做任何事並回傳 false。
func TakeItemFromQueue(s *types.State) bool {
	if s.CurrentlyCraftedItem != nil {
		return false
	}

	for len(s.ItemQueue) > 0 && s.CurrentlyCraftedItem == nil {
		first := &s.ItemQueue[0]
		if first.Quantity > 0 {
			s.CurrentlyCraftedItem = &types.CurrentItem{
				WorkshopItemID:                 first.WorkshopItemID,
				ContributedItemsInCurrentPhase: make([]types.PhaseItem, 0),
			}
			if first.Quantity > 1 {
				first.Quantity--
				continue
			}
		}
		s.ItemQueue = s.ItemQueue[1:]
	}

	return s.CurrentlyCraftedItem != nil
}

// UpdateFromCraftState 以即時快照修正本地進度，回傳是否有變更
//
// 同一份快照重複套用不會再產生變更。
func UpdateFromCraftState(cur *types.CurrentItem, cs *client.CraftState) bool {
	changed := false
	if cur.PhasesComplete != cs.StepsComplete {
		cur.PhasesComplete = cs.StepsComplete
		changed = true
	}

	if len(cur.ContributedItemsInCurrentPhase) != len(cs.Items) {
		rebuilt := make([]types.PhaseItem, 0, len(cs.Items))
		for _, item := range cs.Items {
			rebuilt = append(rebuilt, types.PhaseItem{ItemID: item.ItemID, QuantityComplete: item.QuantityComplete()})
		}
		cur.ContributedItemsInCurrentPhase = rebuilt
		return true
	}

	for i := range cur.ContributedItemsInCurrentPhase {
		contributed := &cur.ContributedItemsInCurrentPhase[i]
		live := cs.Items[i]
		if contributed.ItemID != live.ItemID {
			contributed.ItemID = live.ItemID
			changed = true
		}
		if contributed.QuantityComplete != live.QuantityComplete() {
			contributed.QuantityComplete = live.QuantityComplete()
			changed = true
		}
	}

	return changed
}

// RecordContribution 更新單一材料在目前階段的已繳交數量
//
// 找不到該材料時回傳 false（本地進度與視窗不一致，下次進入繳交階段時會被修正）。
func RecordContribution(cur *types.CurrentItem, itemID, quantityComplete uint32) bool {
	for i := range cur.ContributedItemsInCurrentPhase {
		if cur.ContributedItemsInCurrentPhase[i].ItemID == itemID {
			cur.ContributedItemsInCurrentPhase[i].QuantityComplete = quantityComplete
			return true
		}
	}
	return false
}

// CompletePhase 進入下一階段並清空本階段的繳交記錄
func CompletePhase(cur *types.CurrentItem) {
	cur.PhasesComplete++
	cur.ContributedItemsInCurrentPhase = make([]types.PhaseItem, 0)
}
