package recipe

// ============================================================================
// 配方資料來源
// ============================================================================

import (
	"fmt"
	"math"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// RecipeIngredient 配方中的一種材料
type RecipeIngredient struct {
	ItemID uint32 `yaml:"item_id"`
	Name   string `yaml:"name"`
	Amount int    `yaml:"amount"` // 每次製作需要的數量
}

// Recipe 一個製作配方
type Recipe struct {
	ResultItem   uint32             `yaml:"result_item"`
	Name         string             `yaml:"name"`
	AmountResult int                `yaml:"amount_result"` // 每次製作產出的數量（批次產量）
	Ingredients  []RecipeIngredient `yaml:"ingredients"`
}

// Source 解析器需要的外部查詢
type Source interface {
	// FirstRecipeForItem 回傳第一個產出該物品的配方
	FirstRecipeForItem(itemID uint32) (Recipe, bool)
	// IsShopPurchasable 物品是否能向允許清單中的商人購買
	IsShopPurchasable(itemID uint32) bool
	// HasGatheringOrVentureSource 物品是否能採集或由雇員探險取得
	HasGatheringOrVentureSource(itemID uint32) bool
}

// isValidItem 過濾水晶與佔位資料列
func isValidItem(itemID uint32) bool {
	return itemID > 19 && itemID != math.MaxUint32
}

// ShopStock 單一商人販售的物品
type ShopStock struct {
	VendorID uint32   `yaml:"vendor_id"`
	Name     string   `yaml:"name"`
	Items    []uint32 `yaml:"items"`
}

// BookData 配方資料檔格式
type BookData struct {
	Recipes   []Recipe    `yaml:"recipes"`
	Gathering []uint32    `yaml:"gathering"`
	Ventures  []uint32    `yaml:"ventures"`
	Shops     []ShopStock `yaml:"shops"`
}

// Book 以記憶體表格實作 Source
type Book struct {
	recipes   map[uint32]Recipe
	gatherers map[uint32]struct{}
	shopItems map[uint32]struct{}
}

// NewBook 建立配方表
//
// 只有 vendorIDs 中的商人會被視為可購買來源；
// 同一成品有多個配方時保留第一個。
func NewBook(data BookData, vendorIDs []uint32) *Book {
	allowed := make(map[uint32]struct{}, len(vendorIDs))
	for _, id := range vendorIDs {
		allowed[id] = struct{}{}
	}

	b := &Book{
		recipes:   make(map[uint32]Recipe),
		gatherers: make(map[uint32]struct{}),
		shopItems: make(map[uint32]struct{}),
	}

	for _, r := range data.Recipes {
		if r.ResultItem == 0 {
			continue
		}
		if _, exists := b.recipes[r.ResultItem]; exists {
			continue
		}
		if r.AmountResult <= 0 {
			r.AmountResult = 1
		}
		b.recipes[r.ResultItem] = r
	}

	for _, id := range append(append([]uint32(nil), data.Gathering...), data.Ventures...) {
		if id > 0 {
			b.gatherers[id] = struct{}{}
		}
	}

	for _, shop := range data.Shops {
		if _, ok := allowed[shop.VendorID]; !ok {
			continue
		}
		for _, id := range shop.Items {
			if id > 0 {
				b.shopItems[id] = struct{}{}
			}
		}
	}

	return b
}

// LoadBook 讀取所有符合模式的配方資料檔並合併
func LoadBook(patterns []string, vendorIDs []uint32) (*Book, error) {
	var merged BookData
	matched := 0
	for _, pattern := range patterns {
		paths, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad recipe pattern %q: %w", pattern, err)
		}
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read recipe file %s: %w", path, err)
			}
			var part BookData
			if err := yaml.Unmarshal(data, &part); err != nil {
				return nil, fmt.Errorf("failed to parse recipe file %s: %w", path, err)
			}
			merged.Recipes = append(merged.Recipes, part.Recipes...)
			merged.Gathering = append(merged.Gathering, part.Gathering...)
			merged.Ventures = append(merged.Ventures, part.Ventures...)
			merged.Shops = append(merged.Shops, part.Shops...)
			matched++
		}
	}

	if matched == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoRecipeFiles, patterns)
	}

	log.Debug("Recipe book loaded",
		"files", matched,
		"recipes", len(merged.Recipes),
		"shops", len(merged.Shops))
	return NewBook(merged, vendorIDs), nil
}

func (b *Book) FirstRecipeForItem(itemID uint32) (Recipe, bool) {
	r, ok := b.recipes[itemID]
	return r, ok
}

func (b *Book) IsShopPurchasable(itemID uint32) bool {
	_, ok := b.shopItems[itemID]
	return ok
}

func (b *Book) HasGatheringOrVentureSource(itemID uint32) bool {
	_, ok := b.gatherers[itemID]
	return ok
}
