// ============================================================================
// Workshop Queue 材料解析器 - 把工坊材料展開成依序製作的清單
// ============================================================================
//
// Package: internal/recipe
// 文件: resolver.go
// 功能: 多層配方展開、數量合併、批次產量修正、拓撲排序
//
// 流程（每一步都是不修改輸入的純函式）:
//   1. expand         逐層把可製作的材料換成配方的直接材料（最多 10 層）
//   2. aggregate      依物品 ID 合併數量
//   3. correctBatches 批次產量 > 1 的配方，其材料以無條件進位的批次數計算
//   4. order          分輪挑出依賴皆已排定的項目，同輪依名稱排序
//
// 商店可購買的材料一律不再展開，也視為沒有依賴。
//
// ============================================================================

package recipe

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var log = slog.Default()

// maxExpansionDepth 展開層數上限，避免錯誤或循環的配方資料造成無限展開
const maxExpansionDepth = 10

var (
	// ErrUnresolvable 無法排出製作順序（循環依賴或展開被截斷）
	ErrUnresolvable = errors.New("recipe: unable to sort items")
	// ErrNoRecipeFiles 沒有任何配方資料檔
	ErrNoRecipeFiles = errors.New("recipe: no files matched")
)

// StuckItem 無法排定的項目及其未滿足的依賴
type StuckItem struct {
	ItemID   uint32
	Name     string
	Quantity int
	Missing  []uint32
}

// UnresolvableError 排序卡住時回傳，列出所有卡住的項目
type UnresolvableError struct {
	Stuck []StuckItem
}

func (e *UnresolvableError) Error() string {
	parts := make([]string, 0, len(e.Stuck))
	for _, s := range e.Stuck {
		missing := make([]string, 0, len(s.Missing))
		for _, id := range s.Missing {
			missing = append(missing, fmt.Sprint(id))
		}
		parts = append(parts, fmt.Sprintf("%dx %s (%d) -> (%s)",
			s.Quantity, s.Name, s.ItemID, strings.Join(missing, ", ")))
	}
	return fmt.Sprintf("%s: %s", ErrUnresolvable, strings.Join(parts, "; "))
}

func (e *UnresolvableError) Unwrap() error {
	return ErrUnresolvable
}

// recipeInfo 解析過程中的中間值，比最終結果多了批次產量與直接依賴
type recipeInfo struct {
	itemID        uint32
	name          string
	iconID        uint32
	quantity      int
	kind          types.IngredientType
	amountCrafted int
	dependsOn     []uint32
}

func (r recipeInfo) withQuantity(q int) recipeInfo {
	r.quantity = q
	r.dependsOn = append([]uint32(nil), r.dependsOn...)
	return r
}

func (r recipeInfo) ingredient() types.Ingredient {
	return types.Ingredient{
		ItemID:        r.itemID,
		IconID:        r.iconID,
		Name:          r.name,
		TotalQuantity: r.quantity,
		Type:          r.kind,
	}
}

// Resolver 材料解析器
type Resolver struct {
	src Source
}

// NewResolver 建立解析器
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Resolve 展開材料清單並回傳依製作順序排列的結果
//
// 參數：
//   - materials: 頂層材料（通常是工坊各階段需要的材料，類型為 Craftable）
//
// 返回值：
//   - []types.Ingredient: 依製作順序排列，同一輪依名稱排序
//   - error: 無法排序時回傳 *UnresolvableError
func (r *Resolver) Resolve(materials []types.Ingredient) ([]types.Ingredient, error) {
	expanded := r.expand(materials)
	aggregated := aggregate(expanded)

	for _, item := range aggregated {
		log.Debug("Complete craft list entry", "quantity", item.quantity, "name", item.name)
	}

	corrected := correctBatches(aggregated)
	sorted, err := order(corrected)
	if err != nil {
		return nil, err
	}

	result := make([]types.Ingredient, 0, len(sorted))
	for _, item := range sorted {
		result = append(result, item.ingredient())
	}
	return result, nil
}

// expand 逐層展開
func (r *Resolver) expand(materials []types.Ingredient) []recipeInfo {
	level := r.seed(materials)
	all := append([]recipeInfo(nil), level...)

	for depth := 1; depth < maxExpansionDepth && anyCraftable(level); depth++ {
		level = r.children(level)
		all = append(all, level...)
	}
	return all
}

// seed 把頂層材料轉成中間值
//
// 有配方的項目保留呼叫端給的類型（商店物品除外），
// 沒有配方的項目依來源重新分類並原樣傳遞。
func (r *Resolver) seed(materials []types.Ingredient) []recipeInfo {
	infos := make([]recipeInfo, 0, len(materials))
	for _, m := range materials {
		rec, hasRecipe := r.src.FirstRecipeForItem(m.ItemID)

		kind := m.Type
		switch {
		case r.src.IsShopPurchasable(m.ItemID):
			kind = types.IngredientShopItem
		case !hasRecipe:
			kind = r.classify(m.ItemID, false)
		}

		infos = append(infos, recipeInfo{
			itemID:        m.ItemID,
			name:          m.Name,
			iconID:        m.IconID,
			quantity:      m.TotalQuantity,
			kind:          kind,
			amountCrafted: amountResult(rec, hasRecipe),
			dependsOn:     dependencies(rec, hasRecipe),
		})
	}
	return infos
}

// children 把這一層所有可製作項目換成其配方的直接材料
func (r *Resolver) children(level []recipeInfo) []recipeInfo {
	var next []recipeInfo
	for _, parent := range level {
		if parent.kind != types.IngredientCraftable {
			continue
		}
		rec, ok := r.src.FirstRecipeForItem(parent.itemID)
		if !ok {
			continue
		}

		for _, ing := range rec.Ingredients {
			if !isValidItem(ing.ItemID) || ing.Amount <= 0 {
				continue
			}
			sub, hasRecipe := r.src.FirstRecipeForItem(ing.ItemID)
			next = append(next, recipeInfo{
				itemID:        ing.ItemID,
				name:          ing.Name,
				quantity:      parent.quantity * ing.Amount,
				kind:          r.classify(ing.ItemID, hasRecipe),
				amountCrafted: amountResult(sub, hasRecipe),
				dependsOn:     dependencies(sub, hasRecipe),
			})
		}
	}
	return next
}

// classify 商店優先，其次配方，再來是採集/探險
func (r *Resolver) classify(itemID uint32, hasRecipe bool) types.IngredientType {
	switch {
	case r.src.IsShopPurchasable(itemID):
		return types.IngredientShopItem
	case hasRecipe:
		return types.IngredientCraftable
	case r.src.HasGatheringOrVentureSource(itemID):
		return types.IngredientGatherable
	default:
		return types.IngredientOther
	}
}

func amountResult(rec Recipe, ok bool) int {
	if !ok || rec.AmountResult <= 0 {
		return 1
	}
	return rec.AmountResult
}

func dependencies(rec Recipe, ok bool) []uint32 {
	if !ok {
		return nil
	}
	var deps []uint32
	for _, ing := range rec.Ingredients {
		if isValidItem(ing.ItemID) {
			deps = append(deps, ing.ItemID)
		}
	}
	return deps
}

func anyCraftable(items []recipeInfo) bool {
	for _, item := range items {
		if item.kind == types.IngredientCraftable {
			return true
		}
	}
	return false
}

// aggregate 依物品 ID 合併，保留第一次出現的名稱、類型與依賴
func aggregate(items []recipeInfo) []recipeInfo {
	index := make(map[uint32]int)
	var groups []recipeInfo
	for _, item := range items {
		if i, ok := index[item.itemID]; ok {
			groups[i] = groups[i].withQuantity(groups[i].quantity + item.quantity)
			continue
		}
		index[item.itemID] = len(groups)
		groups = append(groups, item.withQuantity(item.quantity))
	}
	return groups
}

// correctBatches 批次產量修正
//
// 每個依賴項目對每個「批次產量 > 1 的不同父項目」各除一次（無條件進位），
// 一律從修正前的數量出發。ceil(ceil(x/a)/b) == ceil(x/(a*b))，
// 所以結果與父項目的處理順序無關。
func correctBatches(items []recipeInfo) []recipeInfo {
	divisors := make(map[uint32][]int)
	for _, parent := range items {
		if parent.amountCrafted <= 1 {
			continue
		}
		seen := make(map[uint32]struct{})
		for _, dep := range parent.dependsOn {
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			divisors[dep] = append(divisors[dep], parent.amountCrafted)
		}
	}

	out := make([]recipeInfo, 0, len(items))
	for _, item := range items {
		q := item.quantity
		for _, d := range divisors[item.itemID] {
			q = ceilDiv(q, d)
		}
		out = append(out, item.withQuantity(q))
	}
	return out
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return n
	}
	return (n + d - 1) / d
}

// order 分輪拓撲排序
func order(items []recipeInfo) ([]recipeInfo, error) {
	pending := make([]recipeInfo, 0, len(items))
	for _, item := range items {
		item = item.withQuantity(item.quantity)
		if item.kind == types.IngredientShopItem {
			item.dependsOn = nil
		}
		pending = append(pending, item)
	}

	placed := make(map[uint32]struct{}, len(items))
	sorted := make([]recipeInfo, 0, len(items))

	for len(pending) > 0 {
		var ready, waiting []recipeInfo
		for _, item := range pending {
			if allPlaced(item.dependsOn, placed) {
				ready = append(ready, item)
			} else {
				waiting = append(waiting, item)
			}
		}

		if len(ready) == 0 {
			return nil, stuckError(waiting, placed)
		}

		sort.SliceStable(ready, func(i, j int) bool {
			return ready[i].name < ready[j].name
		})
		for _, item := range ready {
			placed[item.itemID] = struct{}{}
		}
		sorted = append(sorted, ready...)
		pending = waiting
	}

	return sorted, nil
}

func allPlaced(deps []uint32, placed map[uint32]struct{}) bool {
	for _, dep := range deps {
		if _, ok := placed[dep]; !ok {
			return false
		}
	}
	return true
}

func stuckError(waiting []recipeInfo, placed map[uint32]struct{}) error {
	err := &UnresolvableError{}
	for _, item := range waiting {
		var missing []uint32
		for _, dep := range item.dependsOn {
			if _, ok := placed[dep]; !ok {
				missing = append(missing, dep)
			}
		}
		log.Warn("Can't craft item",
			"quantity", item.quantity,
			"name", item.name,
			"missing", missing)
		err.Stuck = append(err.Stuck, StuckItem{
			ItemID:   item.itemID,
			Name:     item.name,
			Quantity: item.quantity,
			Missing:  missing,
		})
	}
	return err
}
