package jobmanager

import (
	"sort"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// MaterialList 佇列與當前製作還需要的所有工坊材料
//
// 佇列中每一個數量都計入完整的材料需求；當前製作扣掉已完成階段
// 與本階段已繳交的數量。結果依名稱排序，類型一律為 Craftable，
// 作為材料解析器的輸入。目錄中找不到的項目會被略過。
func MaterialList(s types.State, cat *catalog.Catalog) []types.Ingredient {
	type key struct {
		itemID uint32
		name   string
		iconID uint32
	}

	var order []key
	totals := make(map[key]int)
	addCraft := func(craft catalog.Craft) {
		for _, phase := range craft.Phases {
			for _, item := range phase.Items {
				k := key{item.ItemID, item.Name, item.IconID}
				if _, seen := totals[k]; !seen {
					order = append(order, k)
				}
				totals[k] += item.TotalQuantity()
			}
		}
	}

	for _, queued := range s.ItemQueue {
		craft, ok := cat.ByWorkshopItemID(queued.WorkshopItemID)
		if !ok {
			continue
		}
		for i := 0; i < queued.Quantity; i++ {
			addCraft(craft)
		}
	}

	completed := make(map[uint32]int)
	if cur := s.CurrentlyCraftedItem; cur != nil {
		if craft, ok := cat.ByWorkshopItemID(cur.WorkshopItemID); ok {
			addCraft(craft)

			for i := 0; i < int(cur.PhasesComplete) && i < len(craft.Phases); i++ {
				for _, item := range craft.Phases[i].Items {
					completed[item.ItemID] += item.TotalQuantity()
				}
			}
			if int(cur.PhasesComplete) < len(craft.Phases) {
				for _, item := range cur.ContributedItemsInCurrentPhase {
					completed[item.ItemID] += int(item.QuantityComplete)
				}
			}
		}
	}

	result := make([]types.Ingredient, 0, len(order))
	for _, k := range order {
		remaining := totals[k] - completed[k.itemID]
		if remaining <= 0 {
			continue
		}
		result = append(result, types.Ingredient{
			ItemID:        k.itemID,
			IconID:        k.iconID,
			Name:          k.name,
			TotalQuantity: remaining,
			Type:          types.IngredientCraftable,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
