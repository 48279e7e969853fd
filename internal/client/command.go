package client

import "fmt"

// CommandKind UI 指令種類
type CommandKind int

const (
	CmdSelectMenuChoice CommandKind = iota
	CmdConfirmYesNo
	CmdSelectRecipeCategory
	CmdSelectRecipe
	CmdContributeMaterial
	CmdOpenRequestItemSelect
	CmdSelectRequestItem
	CmdHandOverRequestItems
	CmdInteract
)

var commandNames = map[CommandKind]string{
	CmdSelectMenuChoice:      "SelectMenuChoice",
	CmdConfirmYesNo:          "ConfirmYesNo",
	CmdSelectRecipeCategory:  "SelectRecipeCategory",
	CmdSelectRecipe:          "SelectRecipe",
	CmdContributeMaterial:    "ContributeMaterial",
	CmdOpenRequestItemSelect: "OpenRequestItemSelect",
	CmdSelectRequestItem:     "SelectRequestItem",
	CmdHandOverRequestItems:  "HandOverRequestItems",
	CmdInteract:              "Interact",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CommandKind(%d)", int(k))
}

// Command 一個待送出的 UI 指令
//
// 控制器的各階段只產生 Command，由控制器統一送出，
// 讓決策邏輯可以不依賴真正的遊戲介面來測試。
type Command struct {
	Kind           CommandKind
	Index          int // 選單、是/否、欄位索引
	Category       uint32
	CraftType      uint32
	WorkshopItemID uint32
	Count          uint32
	Object         ObjectHandle
}

func SelectMenuChoice(index int) Command {
	return Command{Kind: CmdSelectMenuChoice, Index: index}
}

func ConfirmYesNo(choice int) Command {
	return Command{Kind: CmdConfirmYesNo, Index: choice}
}

func SelectRecipeCategory(category, craftType uint32) Command {
	return Command{Kind: CmdSelectRecipeCategory, Category: category, CraftType: craftType}
}

func SelectRecipe(workshopItemID uint32) Command {
	return Command{Kind: CmdSelectRecipe, WorkshopItemID: workshopItemID}
}

func ContributeMaterial(slot int, count uint32) Command {
	return Command{Kind: CmdContributeMaterial, Index: slot, Count: count}
}

func OpenRequestItemSelect() Command {
	return Command{Kind: CmdOpenRequestItemSelect}
}

func SelectRequestItem(slot int) Command {
	return Command{Kind: CmdSelectRequestItem, Index: slot}
}

func HandOverRequestItems() Command {
	return Command{Kind: CmdHandOverRequestItems}
}

func InteractWithObject(obj ObjectHandle) Command {
	return Command{Kind: CmdInteract, Object: obj}
}

// Send 把指令送到實際的介面
func (c Command) Send(to Commands) error {
	switch c.Kind {
	case CmdSelectMenuChoice:
		return to.SelectMenuChoice(c.Index)
	case CmdConfirmYesNo:
		return to.ConfirmYesNo(c.Index)
	case CmdSelectRecipeCategory:
		return to.SelectRecipeCategory(c.Category, c.CraftType)
	case CmdSelectRecipe:
		return to.SelectRecipe(c.WorkshopItemID)
	case CmdContributeMaterial:
		return to.ContributeMaterial(c.Index, c.Count)
	case CmdOpenRequestItemSelect:
		return to.OpenRequestItemSelect()
	case CmdSelectRequestItem:
		return to.SelectRequestItem(c.Index)
	case CmdHandOverRequestItems:
		return to.HandOverRequestItems()
	case CmdInteract:
		return to.InteractWithObject(c.Object)
	default:
		return fmt.Errorf("unknown command kind %d", int(c.Kind))
	}
}

func (c Command) String() string {
	switch c.Kind {
	case CmdSelectMenuChoice, CmdConfirmYesNo, CmdSelectRequestItem:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Index)
	case CmdSelectRecipeCategory:
		return fmt.Sprintf("%s(%d, %d)", c.Kind, c.Category, c.CraftType)
	case CmdSelectRecipe:
		return fmt.Sprintf("%s(%d)", c.Kind, c.WorkshopItemID)
	case CmdContributeMaterial:
		return fmt.Sprintf("%s(slot=%d, count=%d)", c.Kind, c.Index, c.Count)
	case CmdInteract:
		return fmt.Sprintf("%s(%d)", c.Kind, c.Object.DataID)
	default:
		return c.Kind.String()
	}
}
