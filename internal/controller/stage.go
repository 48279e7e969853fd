package controller

import "fmt"

// Stage 控制器目前所在的階段
type Stage int

const (
	stageAny Stage = iota // 只用於事件：任何階段都有效

	StageTakeItemFromQueue
	StageTargetFabricationStation
	StageOpenCraftingLog
	StageSelectCraftCategory
	StageSelectCraft
	StageConfirmCraft
	StageSelectCraftBranch
	StageContributeMaterials
	StageOpenRequestItemWindow
	StageOpenRequestItemSelect
	StageConfirmRequestItemWindow
	StageConfirmMaterialDelivery
	StageConfirmCollectProduct
	StageRequestStop
	StageStopped
)

var stageNames = map[Stage]string{
	StageTakeItemFromQueue:        "TakeItemFromQueue",
	StageTargetFabricationStation: "TargetFabricationStation",
	StageOpenCraftingLog:          "OpenCraftingLog",
	StageSelectCraftCategory:      "SelectCraftCategory",
	StageSelectCraft:              "SelectCraft",
	StageConfirmCraft:             "ConfirmCraft",
	StageSelectCraftBranch:        "SelectCraftBranch",
	StageContributeMaterials:      "ContributeMaterials",
	StageOpenRequestItemWindow:    "OpenRequestItemWindow",
	StageOpenRequestItemSelect:    "OpenRequestItemSelect",
	StageConfirmRequestItemWindow: "ConfirmRequestItemWindow",
	StageConfirmMaterialDelivery:  "ConfirmMaterialDelivery",
	StageConfirmCollectProduct:    "ConfirmCollectProduct",
	StageRequestStop:              "RequestStop",
	StageStopped:                  "Stopped",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// parseStage String 的反向
func parseStage(name string) (Stage, bool) {
	for stage, n := range stageNames {
		if n == name {
			return stage, true
		}
	}
	return stageAny, false
}
