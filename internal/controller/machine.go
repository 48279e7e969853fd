package controller

// ============================================================================
// 階段轉換表
// 職責：以 looplab/fsm 驗證每一次階段變更都在合法的轉換圖內
// ============================================================================

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"
)

// transitions 每個目標階段允許的來源階段
//
// RequestStop 與 Stopped 可以從任何階段進入，另外加入。
var transitions = map[Stage][]Stage{
	StageTakeItemFromQueue: {
		StageStopped, StageConfirmCollectProduct, StageTargetFabricationStation,
	},
	StageTargetFabricationStation: {
		StageTakeItemFromQueue, StageConfirmCraft, StageSelectCraftBranch,
		StageContributeMaterials, StageOpenRequestItemWindow, StageConfirmMaterialDelivery,
	},
	StageOpenCraftingLog:     {StageTargetFabricationStation},
	StageSelectCraftCategory: {StageOpenCraftingLog},
	StageSelectCraft:         {StageSelectCraftCategory},
	StageConfirmCraft:        {StageSelectCraft},
	StageSelectCraftBranch:   {StageTargetFabricationStation},
	StageContributeMaterials: {
		StageTakeItemFromQueue, StageSelectCraftBranch, StageConfirmMaterialDelivery,
	},
	StageOpenRequestItemWindow:    {StageContributeMaterials},
	StageOpenRequestItemSelect:    {StageOpenRequestItemWindow},
	StageConfirmRequestItemWindow: {StageOpenRequestItemSelect},
	StageConfirmMaterialDelivery:  {StageConfirmRequestItemWindow},
	StageConfirmCollectProduct:    {StageSelectCraftBranch},
}

// machine 階段狀態機
type machine struct {
	fsm *fsm.FSM
}

func eventName(to Stage) string {
	return "to_" + to.String()
}

// newMachine 建立狀態機，onEnter 在每次進入新階段後呼叫
func newMachine(initial Stage, onEnter func(from, to Stage)) *machine {
	var all []string
	for stage := StageTakeItemFromQueue; stage <= StageStopped; stage++ {
		all = append(all, stage.String())
	}

	events := make(fsm.Events, 0, len(transitions)+2)
	for to, from := range transitions {
		src := make([]string, 0, len(from))
		for _, s := range from {
			src = append(src, s.String())
		}
		events = append(events, fsm.EventDesc{Name: eventName(to), Src: src, Dst: to.String()})
	}

	// 停止請求與暫停可以從任何階段發生
	var notStopped []string
	for _, s := range all {
		if s != StageStopped.String() && s != StageRequestStop.String() {
			notStopped = append(notStopped, s)
		}
	}
	events = append(events,
		fsm.EventDesc{Name: eventName(StageRequestStop), Src: notStopped, Dst: StageRequestStop.String()},
		fsm.EventDesc{Name: eventName(StageStopped), Src: append(notStopped, StageRequestStop.String()), Dst: StageStopped.String()},
	)

	m := &machine{}
	m.fsm = fsm.NewFSM(
		initial.String(),
		events,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				from, _ := parseStage(e.Src)
				to, _ := parseStage(e.Dst)
				if onEnter != nil {
					onEnter(from, to)
				}
			},
		},
	)
	return m
}

// Current 目前階段
func (m *machine) Current() Stage {
	s, _ := parseStage(m.fsm.Current())
	return s
}

// Transition 轉換到 to；目前已在 to 時不做任何事
func (m *machine) Transition(to Stage) error {
	if m.Current() == to {
		return nil
	}
	if err := m.fsm.Event(context.Background(), eventName(to)); err != nil {
		return fmt.Errorf("illegal stage change %s -> %s: %w", m.Current(), to, err)
	}
	return nil
}

// Can 是否允許轉換到 to
func (m *machine) Can(to Stage) bool {
	return m.Current() == to || m.fsm.Can(eventName(to))
}
