package controller

// ============================================================================
// 事件
// 職責：tick、按鈕與遊戲介面的生命週期通知都轉成 Event，
//       經由同一個 channel 交給控制器依序處理（單一消費者）
// ============================================================================

import (
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// EventKind 事件種類
type EventKind int

const (
	EventTick EventKind = iota
	EventButton
	EventRequestWindowSetup
	EventItemSelectMenuShown
	EventRequestWindowRefreshed
	EventYesNoShown
	EventStateReloaded
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "Tick"
	case EventButton:
		return "Button"
	case EventRequestWindowSetup:
		return "RequestWindowSetup"
	case EventItemSelectMenuShown:
		return "ItemSelectMenuShown"
	case EventRequestWindowRefreshed:
		return "RequestWindowRefreshed"
	case EventYesNoShown:
		return "YesNoShown"
	case EventStateReloaded:
		return "StateReloaded"
	default:
		return "Unknown"
	}
}

// Button 使用者按下的按鈕
type Button int

const (
	ButtonNone Button = iota
	ButtonStart
	ButtonResume
	ButtonPause
	ButtonStop
)

// Event 放進控制器佇列的訊息
//
// ValidFor 不是 stageAny 時，事件只在控制器仍處於該階段時有效，
// 否則視為過期直接丟棄。
type Event struct {
	Kind       EventKind
	ValidFor   Stage
	Button     Button
	EntryCount int
	Text       string
	State      *types.State
}

// TickEvent 週期性的檢查
func TickEvent() Event {
	return Event{Kind: EventTick}
}

// ButtonEvent 使用者按鈕；在下一個符合條件的 tick 開頭生效
func ButtonEvent(b Button) Event {
	return Event{Kind: EventButton, Button: b}
}

// RequestWindowSetupEvent 繳交請求視窗開啟
func RequestWindowSetupEvent(entryCount int) Event {
	return Event{Kind: EventRequestWindowSetup, ValidFor: StageOpenRequestItemWindow, EntryCount: entryCount}
}

// ItemSelectMenuShownEvent 物品選擇選單出現
func ItemSelectMenuShownEvent() Event {
	return Event{Kind: EventItemSelectMenuShown, ValidFor: StageOpenRequestItemSelect}
}

// RequestWindowRefreshedEvent 繳交請求視窗內容更新
func RequestWindowRefreshedEvent(entryCount int) Event {
	return Event{Kind: EventRequestWindowRefreshed, ValidFor: StageConfirmRequestItemWindow, EntryCount: entryCount}
}

// YesNoShownEvent 是/否對話框出現；對應的階段由對話內容決定
func YesNoShownEvent(text string) Event {
	return Event{Kind: EventYesNoShown, Text: text}
}

// StateReloadedEvent 狀態檔被外部修改
func StateReloadedEvent(state types.State) Event {
	return Event{Kind: EventStateReloaded, ValidFor: StageStopped, State: &state}
}
