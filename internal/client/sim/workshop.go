// ============================================================================
// Workshop Queue 模擬工坊 - 在記憶體中扮演遊戲介面
// ============================================================================
//
// Package: internal/client/sim
// 文件: workshop.go
// 功能: 實作 client 套件的所有協作者介面，模擬製作台、製作筆記本、
//       材料繳交視窗、繳交請求視窗與是/否對話框
//
// 用途:
//   - demo / run 指令在沒有遊戲的情況下驅動控制器
//   - 控制器的端對端測試
//
// 行為:
//   - 與製作台互動會依專案狀態開啟對應的選單
//   - 繳交流程會依序觸發 Listener 的 RequestWindowSetup、
//     ItemSelectMenuShown、RequestWindowRefreshed、YesNoShown
//   - 商店購買同樣以 YesNoShown 要求確認（vendor.go）
//   - Listener 一律在釋放鎖之後呼叫
//
// ============================================================================

package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
)

var log = slog.Default()

// ErrUnexpected 指令與目前的視窗狀態不符
var ErrUnexpected = errors.New("sim: unexpected command for current window")

// 預設的位置與製作台
const (
	DefaultTerritory uint16 = 423
	DefaultStationID uint32 = 2005236
	nothing                 = "Nothing."
)

type promptKind int

const (
	promptNone promptKind = iota
	promptCraft
	promptContribute
	promptRetrieve
	promptPurchase
)

// project 製作台上進行中的專案
type project struct {
	craft       catalog.Craft
	phase       int
	steps       []uint32 // 目前階段每種材料已繳交的次數
	constructed bool
}

func newProject(craft catalog.Craft) *project {
	p := &project{craft: craft}
	p.resetSteps()
	return p
}

func (p *project) resetSteps() {
	p.steps = make([]uint32, len(p.craft.Phases[p.phase].Items))
}

func (p *project) phaseDone() bool {
	for i, item := range p.craft.Phases[p.phase].Items {
		if p.steps[i] < uint32(item.SetsRequired) {
			return false
		}
	}
	return true
}

func (p *project) lastPhase() bool {
	return p.phase == len(p.craft.Phases)-1
}

// pendingContribution 已送出、尚待確認的繳交
type pendingContribution struct {
	slot  int
	count uint32
}

// Workshop 模擬的工坊
type Workshop struct {
	mu       sync.Mutex
	catalog  *catalog.Catalog
	strings  *client.GameStrings
	listener client.Listener

	loggedIn  bool
	territory uint16
	busy      bool
	distance  float64
	station   client.ObjectHandle

	stacks map[uint32][]uint32

	menu        []string
	craftingLog bool
	visible     []client.RecipeChoice
	prompt      string
	promptKind  promptKind
	delivery    bool
	request     *pendingContribution
	selected    bool

	project *project
	shop    *vendor

	runSuppressed    bool
	turnInSuppressed bool

	messages []string
	errors   []string
	sent     []client.Command
}

// New 建立站在製作台旁的模擬工坊
func New(cat *catalog.Catalog, gs *client.GameStrings) *Workshop {
	if gs == nil {
		gs = client.MustGameStrings()
	}
	return &Workshop{
		catalog:   cat,
		strings:   gs,
		loggedIn:  true,
		territory: DefaultTerritory,
		distance:  1.5,
		station:   client.ObjectHandle{ID: 1, DataID: DefaultStationID},
		stacks:    make(map[uint32][]uint32),
	}
}

// SetListener 設定生命週期通知的接收者
func (w *Workshop) SetListener(l client.Listener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listener = l
}

// ============================================================================
// 測試與示範用的操控
// ============================================================================

// AddStack 在背包放入一個堆疊
func (w *Workshop) AddStack(itemID, count uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stacks[itemID] = append(w.stacks[itemID], count)
}

// Stock 為指定製作的每種材料準備足夠 crafts 次使用的單一堆疊
func (w *Workshop) Stock(workshopItemID uint32, crafts int) error {
	craft, ok := w.catalog.ByWorkshopItemID(workshopItemID)
	if !ok {
		return fmt.Errorf("sim: unknown craft %d", workshopItemID)
	}
	for _, phase := range craft.Phases {
		for _, item := range phase.Items {
			for set := 0; set < item.SetsRequired*crafts; set++ {
				w.AddStack(item.ItemID, uint32(item.SetQuantity))
			}
		}
	}
	return nil
}

// SetDistance 角色與製作台的距離
func (w *Workshop) SetDistance(d float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.distance = d
}

// SetTerritory 角色所在的區域
func (w *Workshop) SetTerritory(t uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.territory = t
}

// SetBusy 模擬讀取場景或任務中
func (w *Workshop) SetBusy(busy bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.busy = busy
}

// Messages 使用者看到的一般訊息
func (w *Workshop) Messages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// Errors 使用者看到的錯誤訊息
func (w *Workshop) Errors() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.errors...)
}

// Sent 所有收到的指令（依順序）
func (w *Workshop) Sent() []client.Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]client.Command(nil), w.sent...)
}

// ProjectPhase 製作台上的專案與其階段；沒有專案時 ok 為 false
func (w *Workshop) ProjectPhase() (workshopItemID uint32, phase int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.project == nil {
		return 0, 0, false
	}
	return w.project.craft.WorkshopItemID, w.project.phase, true
}

// ============================================================================
// client.World
// ============================================================================

func (w *Workshop) LoggedIn() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loggedIn
}

func (w *Workshop) Territory() uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.territory
}

func (w *Workshop) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.busy
}

func (w *Workshop) NearestObject(dataIDs []uint32) (client.ObjectHandle, float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range dataIDs {
		if id == w.station.DataID {
			return w.station, w.distance, true
		}
	}
	return client.ObjectHandle{}, 0, false
}

// ============================================================================
// client.Inventory
// ============================================================================

func (w *Workshop) CountItem(itemID uint32) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.countLocked(itemID)
}

func (w *Workshop) countLocked(itemID uint32) int {
	total := 0
	for _, n := range w.stacks[itemID] {
		total += int(n)
	}
	return total
}

func (w *Workshop) HasItemInSingleStack(itemID, minCount uint32) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range w.stacks[itemID] {
		if n >= minCount {
			return true
		}
	}
	return false
}

// takeFromSingleStack 從第一個夠大的堆疊扣除 count 個
func (w *Workshop) takeFromSingleStack(itemID, count uint32) bool {
	stacks := w.stacks[itemID]
	for i, n := range stacks {
		if n < count {
			continue
		}
		if n == count {
			w.stacks[itemID] = append(stacks[:i:i], stacks[i+1:]...)
		} else {
			stacks[i] = n - count
		}
		return true
	}
	return false
}

// ============================================================================
// client.Automation
// ============================================================================

func (w *Workshop) SuppressForRun() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runSuppressed = true
	return nil
}

func (w *Workshop) RestoreRun() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.runSuppressed = false
	return nil
}

func (w *Workshop) SuppressDuringTurnIn() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turnInSuppressed = true
	return nil
}

func (w *Workshop) RestoreTurnIn() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turnInSuppressed = false
	return nil
}

func (w *Workshop) Suppressed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runSuppressed
}

// TurnInSuppressed 繳交期間的自動對話推進是否被停用
func (w *Workshop) TurnInSuppressed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.turnInSuppressed
}

// ============================================================================
// client.Notifier
// ============================================================================

func (w *Workshop) Print(msg string) {
	w.mu.Lock()
	w.messages = append(w.messages, msg)
	w.mu.Unlock()
	log.Info("Chat", "message", msg)
}

func (w *Workshop) PrintError(msg string) {
	w.mu.Lock()
	w.errors = append(w.errors, msg)
	w.mu.Unlock()
	log.Warn("Chat error", "message", msg)
}

// ============================================================================
// client.UI
// ============================================================================

func (w *Workshop) MaterialDelivery() (*client.CraftState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.delivery || w.project == nil {
		return nil, client.ErrNotReady
	}

	p := w.project
	phase := p.craft.Phases[p.phase]
	state := &client.CraftState{
		ResultItem:    p.craft.ResultItem,
		StepsComplete: uint32(p.phase),
		StepsTotal:    uint32(len(p.craft.Phases)),
		Items:         make([]client.CraftItem, 0, len(phase.Items)),
	}
	for i, item := range phase.Items {
		state.Items = append(state.Items, client.CraftItem{
			ItemID:           item.ItemID,
			IconID:           item.IconID,
			ItemName:         item.Name,
			ItemCountPerStep: uint32(item.SetQuantity),
			ItemCountNQ:      uint32(w.countLocked(item.ItemID)),
			StepsComplete:    p.steps[i],
			StepsTotal:       uint32(item.SetsRequired),
			Finished:         p.steps[i] >= uint32(item.SetsRequired),
		})
	}
	return state, nil
}

func (w *Workshop) CraftingLogOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.craftingLog
}

func (w *Workshop) VisibleRecipeChoices() ([]client.RecipeChoice, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.craftingLog {
		return nil, false
	}
	return append([]client.RecipeChoice(nil), w.visible...), true
}

func (w *Workshop) MenuChoiceText(index int) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.menu) {
		return "", false
	}
	return w.menu[index], true
}

func (w *Workshop) ConfirmationPromptText() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.promptKind == promptNone {
		return "", false
	}
	return w.prompt, true
}

// ============================================================================
// client.Commands
// ============================================================================

func (w *Workshop) InteractWithObject(obj client.ObjectHandle) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(client.InteractWithObject(obj))

	if obj.DataID != w.station.DataID || w.distance >= 3 {
		return fmt.Errorf("%w: station out of range", ErrUnexpected)
	}

	w.closeAllLocked()
	gs := w.strings
	switch p := w.project; {
	case p == nil:
		w.menu = []string{gs.ViewCraftingLog, nothing}
	case p.constructed:
		w.menu = []string{gs.CollectProduct, nothing}
	case !p.phaseDone():
		w.menu = []string{gs.ContributeMaterials, nothing}
	case !p.lastPhase():
		w.menu = []string{gs.AdvancePhase, nothing}
	default:
		w.menu = []string{gs.CompleteConstruction + " the " + p.craft.Name + ".", nothing}
	}
	return nil
}

func (w *Workshop) SelectMenuChoice(index int) error {
	w.mu.Lock()
	w.record(client.SelectMenuChoice(index))

	if index < 0 || index >= len(w.menu) {
		w.mu.Unlock()
		return fmt.Errorf("%w: no menu entry %d", ErrUnexpected, index)
	}
	text := w.menu[index]
	w.menu = nil

	gs := w.strings
	var notify func(client.Listener)
	switch {
	case text == gs.ViewCraftingLog:
		w.craftingLog = true
		w.visible = nil
	case text == gs.ContributeMaterials:
		w.delivery = true
	case text == gs.AdvancePhase:
		w.project.phase++
		w.project.resetSteps()
	case strings.HasPrefix(text, gs.CompleteConstruction):
		w.project.constructed = true
	case text == gs.CollectProduct:
		prompt := "Retrieve the " + w.project.craft.Name + "?"
		w.setPromptLocked(promptRetrieve, prompt)
		notify = func(l client.Listener) { l.YesNoShown(prompt) }
	}
	listener := w.listener
	w.mu.Unlock()

	if notify != nil && listener != nil {
		notify(listener)
	}
	return nil
}

func (w *Workshop) SelectRecipeCategory(category, craftType uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(client.SelectRecipeCategory(category, craftType))

	if !w.craftingLog {
		return fmt.Errorf("%w: crafting log is closed", ErrUnexpected)
	}
	w.visible = nil
	for _, craft := range w.catalog.Crafts() {
		if uint32(craft.Category) == category && craft.Type == craftType {
			w.visible = append(w.visible, client.RecipeChoice{WorkshopItemID: craft.WorkshopItemID, Name: craft.Name})
		}
	}
	sort.Slice(w.visible, func(i, j int) bool { return w.visible[i].Name < w.visible[j].Name })
	return nil
}

func (w *Workshop) SelectRecipe(workshopItemID uint32) error {
	w.mu.Lock()
	w.record(client.SelectRecipe(workshopItemID))

	var name string
	for _, choice := range w.visible {
		if choice.WorkshopItemID == workshopItemID {
			name = choice.Name
		}
	}
	if !w.craftingLog || name == "" {
		w.mu.Unlock()
		return fmt.Errorf("%w: recipe %d is not visible", ErrUnexpected, workshopItemID)
	}

	prompt := w.strings.ConfirmCraftPrefix + name + "?"
	w.setPromptLocked(promptCraft, prompt)
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.YesNoShown(prompt)
	}
	return nil
}

func (w *Workshop) ContributeMaterial(slot int, count uint32) error {
	w.mu.Lock()
	w.record(client.ContributeMaterial(slot, count))

	if !w.delivery || w.project == nil || slot < 0 || slot >= len(w.project.steps) {
		w.mu.Unlock()
		return fmt.Errorf("%w: cannot contribute to slot %d", ErrUnexpected, slot)
	}
	w.request = &pendingContribution{slot: slot, count: count}
	w.selected = false
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.RequestWindowSetup(1)
	}
	return nil
}

func (w *Workshop) OpenRequestItemSelect() error {
	w.mu.Lock()
	w.record(client.OpenRequestItemSelect())

	if w.request == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: request window is closed", ErrUnexpected)
	}
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.ItemSelectMenuShown()
	}
	return nil
}

func (w *Workshop) SelectRequestItem(slot int) error {
	w.mu.Lock()
	w.record(client.SelectRequestItem(slot))

	if w.request == nil || slot != 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: nothing to select in slot %d", ErrUnexpected, slot)
	}
	w.selected = true
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.RequestWindowRefreshed(1)
	}
	return nil
}

func (w *Workshop) HandOverRequestItems() error {
	w.mu.Lock()
	w.record(client.HandOverRequestItems())

	if w.request == nil || !w.selected {
		w.mu.Unlock()
		return fmt.Errorf("%w: no item selected", ErrUnexpected)
	}
	item := w.project.craft.Phases[w.project.phase].Items[w.request.slot]
	prompt := fmt.Sprintf("Contribute %d %s?", w.request.count, strings.ToLower(item.Name))
	w.setPromptLocked(promptContribute, prompt)
	listener := w.listener
	w.mu.Unlock()

	if listener != nil {
		listener.YesNoShown(prompt)
	}
	return nil
}

func (w *Workshop) ConfirmYesNo(choice int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(client.ConfirmYesNo(choice))

	kind, prompt := w.promptKind, w.prompt
	w.setPromptLocked(promptNone, "")
	if kind == promptNone {
		return fmt.Errorf("%w: no confirmation dialog", ErrUnexpected)
	}
	if choice != 0 {
		w.request = nil
		return nil
	}

	switch kind {
	case promptCraft:
		var chosen *catalog.Craft
		for _, visible := range w.visible {
			if craft, ok := w.catalog.ByWorkshopItemID(visible.WorkshopItemID); ok &&
				w.strings.ConfirmCraftPrefix+craft.Name+"?" == prompt {
				chosen = &craft
			}
		}
		w.craftingLog = false
		if chosen == nil {
			return fmt.Errorf("%w: confirmed an unknown craft", ErrUnexpected)
		}
		w.project = newProject(*chosen)
	case promptContribute:
		req := w.request
		w.request = nil
		item := w.project.craft.Phases[w.project.phase].Items[req.slot]
		if !w.takeFromSingleStack(item.ItemID, req.count) {
			return fmt.Errorf("%w: not enough %s in a single stack", ErrUnexpected, item.Name)
		}
		w.project.steps[req.slot]++
	case promptRetrieve:
		w.stacks[w.project.craft.ResultItem] = append(w.stacks[w.project.craft.ResultItem], 1)
		w.project = nil
		w.closeAllLocked()
	case promptPurchase:
		return w.confirmPurchaseLocked()
	}
	return nil
}

// ============================================================================
// 內部輔助
// ============================================================================

func (w *Workshop) record(cmd client.Command) {
	w.sent = append(w.sent, cmd)
}

func (w *Workshop) setPromptLocked(kind promptKind, text string) {
	w.promptKind = kind
	w.prompt = text
}

func (w *Workshop) closeAllLocked() {
	w.menu = nil
	w.craftingLog = false
	w.visible = nil
	w.delivery = false
	w.request = nil
	w.selected = false
}
