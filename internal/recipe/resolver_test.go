package recipe

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// ============================================================================
// 測試輔助
// ============================================================================

const (
	itemA     uint32 = 100
	itemB     uint32 = 200
	itemC     uint32 = 300
	itemD     uint32 = 400
	itemShard uint32 = 2 // 水晶，不是有效材料
)

func craftable(id uint32, name string, qty int) types.Ingredient {
	return types.Ingredient{ItemID: id, Name: name, TotalQuantity: qty, Type: types.IngredientCraftable}
}

func names(items []types.Ingredient) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Name)
	}
	return out
}

func find(t *testing.T, items []types.Ingredient, id uint32) types.Ingredient {
	t.Helper()
	for _, item := range items {
		if item.ItemID == id {
			return item
		}
	}
	t.Fatalf("item %d not in result", id)
	return types.Ingredient{}
}

// A 需要 2 個 B（產出 1），B 需要 3 個 C（產出 4）
func batchBook(extra BookData) *Book {
	data := BookData{
		Recipes: []Recipe{
			{ResultItem: itemA, Name: "A", AmountResult: 1, Ingredients: []RecipeIngredient{
				{ItemID: itemB, Name: "B", Amount: 2},
			}},
			{ResultItem: itemB, Name: "B", AmountResult: 4, Ingredients: []RecipeIngredient{
				{ItemID: itemC, Name: "C", Amount: 3},
			}},
		},
		Gathering: []uint32{itemC},
	}
	data.Recipes = append(data.Recipes, extra.Recipes...)
	data.Shops = append(data.Shops, extra.Shops...)
	return NewBook(data, []uint32{262461})
}

// ============================================================================
// 展開與批次修正
// ============================================================================

func TestResolveBatchYieldCorrection(t *testing.T) {
	r := NewResolver(batchBook(BookData{}))

	result, err := r.Resolve([]types.Ingredient{craftable(itemA, "A", 10)})
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "B", "A"}, names(result))

	c := find(t, result, itemC)
	assert.Equal(t, 15, c.TotalQuantity, "60 C corrected by B's yield of 4")
	assert.Equal(t, types.IngredientGatherable, c.Type)

	b := find(t, result, itemB)
	assert.Equal(t, 20, b.TotalQuantity, "the batch-yielding item itself is not corrected")
	assert.Equal(t, types.IngredientCraftable, b.Type)

	assert.Equal(t, 10, find(t, result, itemA).TotalQuantity)
}

func TestResolveAggregatesDuplicates(t *testing.T) {
	r := NewResolver(batchBook(BookData{}))

	result, err := r.Resolve([]types.Ingredient{
		craftable(itemA, "A", 2),
		craftable(itemB, "B", 4),
	})
	require.NoError(t, err)

	// B = 2*2 + 4 = 8, C = ceil(8*3 / 4) = 6
	assert.Equal(t, 8, find(t, result, itemB).TotalQuantity)
	assert.Equal(t, 6, find(t, result, itemC).TotalQuantity)
}

func TestCorrectBatchesIsOrderIndependent(t *testing.T) {
	dep := recipeInfo{itemID: itemC, name: "C", quantity: 9}
	p1 := recipeInfo{itemID: itemA, name: "A", quantity: 1, amountCrafted: 2, dependsOn: []uint32{itemC}}
	p2 := recipeInfo{itemID: itemB, name: "B", quantity: 1, amountCrafted: 3, dependsOn: []uint32{itemC, itemC}}

	first := correctBatches([]recipeInfo{p1, p2, dep})
	second := correctBatches([]recipeInfo{dep, p2, p1})

	assert.Equal(t, 2, first[2].quantity)
	assert.Equal(t, 2, second[0].quantity)
	assert.Equal(t, 9, dep.quantity, "input is not mutated")
}

func TestCeilDivNeverProducesZeroFromPositive(t *testing.T) {
	assert.Equal(t, 1, ceilDiv(1, 99))
	assert.Equal(t, 5, ceilDiv(20, 4))
	assert.Equal(t, 6, ceilDiv(21, 4))
	assert.Equal(t, 0, ceilDiv(0, 4))
}

// ============================================================================
// 分類
// ============================================================================

func TestResolveShopItemsAreNotExpanded(t *testing.T) {
	book := batchBook(BookData{
		Shops: []ShopStock{
			{VendorID: 262461, Items: []uint32{itemB}},
			{VendorID: 999999, Items: []uint32{itemC}}, // 不在允許清單
		},
	})
	r := NewResolver(book)

	result, err := r.Resolve([]types.Ingredient{craftable(itemA, "A", 10)})
	require.NoError(t, err)

	assert.Equal(t, []string{"B", "A"}, names(result))
	assert.Equal(t, types.IngredientShopItem, find(t, result, itemB).Type)
	assert.Equal(t, 20, find(t, result, itemB).TotalQuantity)
}

func TestResolveShopItemsHaveNoPredecessors(t *testing.T) {
	book := NewBook(BookData{
		Recipes: []Recipe{
			{ResultItem: itemA, Name: "A", AmountResult: 1, Ingredients: []RecipeIngredient{
				{ItemID: itemB, Name: "Zinc", Amount: 1},
				{ItemID: itemD, Name: "Acorn", Amount: 1},
			}},
			// 商店物品也有配方，但不應展開也不應等待 C
			{ResultItem: itemB, Name: "Zinc", AmountResult: 1, Ingredients: []RecipeIngredient{
				{ItemID: itemC, Name: "Ore", Amount: 5},
			}},
		},
		Shops: []ShopStock{{VendorID: 262461, Items: []uint32{itemB}}},
	}, []uint32{262461})

	result, err := NewResolver(book).Resolve([]types.Ingredient{craftable(itemA, "A", 1)})
	require.NoError(t, err)

	assert.Equal(t, []string{"Acorn", "Zinc", "A"}, names(result), "first round is sorted by name")
	assert.Equal(t, types.IngredientOther, find(t, result, itemD).Type)
}

func TestResolveTopLevelShopItem(t *testing.T) {
	book := batchBook(BookData{Shops: []ShopStock{{VendorID: 262461, Items: []uint32{itemA}}}})

	result, err := NewResolver(book).Resolve([]types.Ingredient{craftable(itemA, "A", 3)})
	require.NoError(t, err)

	require.Len(t, result, 1)
	assert.Equal(t, types.IngredientShopItem, result[0].Type)
}

func TestResolvePassesThroughUnknownMaterials(t *testing.T) {
	r := NewResolver(NewBook(BookData{Ventures: []uint32{itemD}}, nil))

	result, err := r.Resolve([]types.Ingredient{
		craftable(itemC, "Mystery", 4),
		craftable(itemD, "Venture Hide", 2),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Mystery", "Venture Hide"}, names(result))
	assert.Equal(t, types.IngredientOther, result[0].Type)
	assert.Equal(t, types.IngredientGatherable, result[1].Type)
}

func TestResolveSkipsInvalidItems(t *testing.T) {
	book := NewBook(BookData{
		Recipes: []Recipe{
			{ResultItem: itemA, Name: "A", AmountResult: 1, Ingredients: []RecipeIngredient{
				{ItemID: itemShard, Name: "Fire Shard", Amount: 3},
				{ItemID: math.MaxUint32, Name: "Placeholder", Amount: 1},
				{ItemID: itemC, Name: "C", Amount: 1},
			}},
		},
	}, nil)

	result, err := NewResolver(book).Resolve([]types.Ingredient{craftable(itemA, "A", 1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, names(result))
}

// ============================================================================
// 失敗情境
// ============================================================================

func TestResolveCycleFails(t *testing.T) {
	book := NewBook(BookData{
		Recipes: []Recipe{
			{ResultItem: itemA, Name: "A", AmountResult: 1, Ingredients: []RecipeIngredient{{ItemID: itemB, Name: "B", Amount: 1}}},
			{ResultItem: itemB, Name: "B", AmountResult: 1, Ingredients: []RecipeIngredient{{ItemID: itemA, Name: "A", Amount: 1}}},
		},
	}, nil)

	_, err := NewResolver(book).Resolve([]types.Ingredient{craftable(itemA, "A", 1)})
	require.ErrorIs(t, err, ErrUnresolvable)

	var unresolvable *UnresolvableError
	require.ErrorAs(t, err, &unresolvable)
	require.Len(t, unresolvable.Stuck, 2)
	assert.Equal(t, []uint32{itemB}, unresolvable.Stuck[0].Missing)
	assert.Equal(t, []uint32{itemA}, unresolvable.Stuck[1].Missing)
	assert.Contains(t, err.Error(), "A (100)")
}

func TestResolveStopsAtExpansionDepth(t *testing.T) {
	const chainLength = 15
	id := func(level int) uint32 { return 1000 + uint32(level) }

	var recipes []Recipe
	for level := 0; level < chainLength; level++ {
		recipes = append(recipes, Recipe{
			ResultItem:   id(level),
			Name:         fmt.Sprintf("L%02d", level),
			AmountResult: 1,
			Ingredients: []RecipeIngredient{
				{ItemID: id(level + 1), Name: fmt.Sprintf("L%02d", level+1), Amount: 1},
			},
		})
	}
	book := NewBook(BookData{Recipes: recipes}, nil)

	_, err := NewResolver(book).Resolve([]types.Ingredient{craftable(id(0), "L00", 1)})
	require.ErrorIs(t, err, ErrUnresolvable)

	var unresolvable *UnresolvableError
	require.ErrorAs(t, err, &unresolvable)
	require.Len(t, unresolvable.Stuck, maxExpansionDepth, "only the first levels are expanded")
	for level, stuck := range unresolvable.Stuck {
		assert.Equal(t, id(level), stuck.ItemID)
		assert.Equal(t, []uint32{id(level + 1)}, stuck.Missing)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	result, err := NewResolver(NewBook(BookData{}, nil)).Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, result)
}

// ============================================================================
// Book
// ============================================================================

func TestNewBookKeepsFirstRecipe(t *testing.T) {
	book := NewBook(BookData{Recipes: []Recipe{
		{ResultItem: itemA, Name: "first", AmountResult: 0},
		{ResultItem: itemA, Name: "second", AmountResult: 2},
		{ResultItem: 0, Name: "ignored"},
	}}, nil)

	r, ok := book.FirstRecipeForItem(itemA)
	require.True(t, ok)
	assert.Equal(t, "first", r.Name)
	assert.Equal(t, 1, r.AmountResult, "missing yield defaults to one")

	_, ok = book.FirstRecipeForItem(0)
	assert.False(t, ok)
}

func TestLoadBook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "recipes.yaml"), []byte(`
recipes:
  - result_item: 100
    name: A
    amount_result: 1
    ingredients:
      - {item_id: 200, name: B, amount: 2}
gathering: [200]
shops:
  - vendor_id: 262422
    name: Housing District Merchant
    items: [300]
`), 0o644))

	book, err := LoadBook([]string{filepath.Join(dir, "**", "*.yaml")}, []uint32{262422})
	require.NoError(t, err)

	_, ok := book.FirstRecipeForItem(100)
	assert.True(t, ok)
	assert.True(t, book.HasGatheringOrVentureSource(200))
	assert.True(t, book.IsShopPurchasable(300))

	_, err = LoadBook([]string{filepath.Join(dir, "*.json")}, nil)
	assert.ErrorIs(t, err, ErrNoRecipeFiles)
}
