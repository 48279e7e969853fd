package client

// ============================================================================
// 對話與選單比對用的文字
// ============================================================================

import (
	"fmt"
	"regexp"
	"strings"
)

// Phrases 可由設定檔覆寫的原始文字；空字串表示使用預設值
type Phrases struct {
	ViewCraftingLog               string `yaml:"view_crafting_log"`
	ContributeMaterials           string `yaml:"contribute_materials"`
	AdvancePhase                  string `yaml:"advance_phase"`
	CompleteConstruction          string `yaml:"complete_construction"`
	CollectProduct                string `yaml:"collect_product"`
	ConfirmCraftPrefix            string `yaml:"confirm_craft_prefix"`
	TurnInHighQualityItem         string `yaml:"turn_in_high_quality_item"`
	ContributeItems               string `yaml:"contribute_items"`                 // regex
	RetrieveFinishedItem          string `yaml:"retrieve_finished_item"`           // regex
	PurchaseItemForGil            string `yaml:"purchase_item_for_gil"`            // regex
	PurchaseItemForCompanyCredits string `yaml:"purchase_item_for_company_credits"` // regex
}

// DefaultPhrases 英文用戶端的文字
func DefaultPhrases() Phrases {
	return Phrases{
		ViewCraftingLog:               "View company crafting log.",
		ContributeMaterials:           "Contribute materials.",
		AdvancePhase:                  "Advance to the next phase of production.",
		CompleteConstruction:          "Complete the construction of",
		CollectProduct:                "Collect finished product.",
		ConfirmCraftPrefix:            "Craft ",
		TurnInHighQualityItem:         "Do you really want to trade a high-quality item?",
		ContributeItems:               `^Contribute .+\?$`,
		RetrieveFinishedItem:          `^Retrieve .+\?$`,
		PurchaseItemForGil:            `^Purchase .+ for .+ gil\?$`,
		PurchaseItemForCompanyCredits: `^Exchange .+ for .+ company credits\?$`,
	}
}

// GameStrings 編譯好的比對規則
type GameStrings struct {
	ViewCraftingLog       string
	ContributeMaterials   string
	AdvancePhase          string
	CompleteConstruction  string
	CollectProduct        string
	ConfirmCraftPrefix    string
	TurnInHighQualityItem string

	ContributeItems               *regexp.Regexp
	RetrieveFinishedItem          *regexp.Regexp
	PurchaseItemForGil            *regexp.Regexp
	PurchaseItemForCompanyCredits *regexp.Regexp
}

// NewGameStrings 以預設值加上 overrides 建立比對規則
func NewGameStrings(overrides Phrases) (*GameStrings, error) {
	p := DefaultPhrases()
	merge(&p.ViewCraftingLog, overrides.ViewCraftingLog)
	merge(&p.ContributeMaterials, overrides.ContributeMaterials)
	merge(&p.AdvancePhase, overrides.AdvancePhase)
	merge(&p.CompleteConstruction, overrides.CompleteConstruction)
	merge(&p.CollectProduct, overrides.CollectProduct)
	merge(&p.ConfirmCraftPrefix, overrides.ConfirmCraftPrefix)
	merge(&p.TurnInHighQualityItem, overrides.TurnInHighQualityItem)
	merge(&p.ContributeItems, overrides.ContributeItems)
	merge(&p.RetrieveFinishedItem, overrides.RetrieveFinishedItem)
	merge(&p.PurchaseItemForGil, overrides.PurchaseItemForGil)
	merge(&p.PurchaseItemForCompanyCredits, overrides.PurchaseItemForCompanyCredits)

	gs := &GameStrings{
		ViewCraftingLog:       p.ViewCraftingLog,
		ContributeMaterials:   p.ContributeMaterials,
		AdvancePhase:          p.AdvancePhase,
		CompleteConstruction:  p.CompleteConstruction,
		CollectProduct:        p.CollectProduct,
		ConfirmCraftPrefix:    p.ConfirmCraftPrefix,
		TurnInHighQualityItem: p.TurnInHighQualityItem,
	}

	patterns := []struct {
		name string
		expr string
		dst  **regexp.Regexp
	}{
		{"contribute_items", p.ContributeItems, &gs.ContributeItems},
		{"retrieve_finished_item", p.RetrieveFinishedItem, &gs.RetrieveFinishedItem},
		{"purchase_item_for_gil", p.PurchaseItemForGil, &gs.PurchaseItemForGil},
		{"purchase_item_for_company_credits", p.PurchaseItemForCompanyCredits, &gs.PurchaseItemForCompanyCredits},
	}
	for _, pat := range patterns {
		re, err := regexp.Compile(pat.expr)
		if err != nil {
			return nil, fmt.Errorf("unable to resolve %s: %w", pat.name, err)
		}
		*pat.dst = re
	}

	return gs, nil
}

// MustGameStrings 預設文字，預設值一定能編譯
func MustGameStrings() *GameStrings {
	gs, err := NewGameStrings(Phrases{})
	if err != nil {
		panic(err)
	}
	return gs
}

// NormalizePrompt 移除對話框文字中的換行
func NormalizePrompt(text string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(text)
}

func merge(dst *string, override string) {
	if override != "" {
		*dst = override
	}
}
