// ============================================================================
// Workshop Queue 控制器 - 工坊製作的階段狀態機
// ============================================================================
//
// Package: internal/controller
// 文件: controller.go
// 功能: 依佇列逐一完成工坊製作：開始製作、逐階段繳交材料、領取成品
//
// 架構設計:
//   - 單一消費者：tick、使用者按鈕、遊戲介面的生命週期通知都是 Event，
//     經由同一個 channel 交給 Run 依序處理，不需要跨 goroutine 的狀態鎖
//   - 每個階段的決策是純函式（handlers.go），回傳 outcome；
//     只有 apply 會寫入狀態、送出指令、寫日誌
//   - 階段變更由 looplab/fsm 驗證（machine.go），不合法的轉換會停止執行
//
// Tick 流程:
//   1. 條件檢查：已登入、在工坊區域、不在讀取或任務中、製作台距離 < 3、
//      目前時間 >= continueAt
//   2. 處理待決的按鈕（Pause/Stop 立即停止；Start/Resume 從 Stopped 開始）
//   3. 執行中時停用其他自動化外掛
//   4. 依目前階段呼叫處理函式
//
// 並發安全:
//   - mu 保護所有控制器狀態；Step 與 Status 都先取得 mu
//   - Post 可以從任何 goroutine 呼叫，不會阻塞
//
// ============================================================================

package controller

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/internal/metrics"
	"github.com/ChuLiYu/workshop-queue/internal/storage/journal"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var log = slog.Default()

// ============================================================================
// 資料結構定義
// ============================================================================

// Config 控制器配置
type Config struct {
	Territories      []uint16      // 工坊所在的區域
	StationIDs       []uint32      // 製作台的物件 ID
	InteractionRange float64       // 與製作台的最大距離
	TickInterval     time.Duration // tick 間隔
	EventBuffer      int           // 事件佇列容量
}

// DefaultConfig 回傳預設配置
func DefaultConfig() Config {
	return Config{
		Territories:      []uint16{423, 424, 425, 653, 984},
		StationIDs:       []uint32{2005236, 2005238, 2005240, 2007821, 2011588},
		InteractionRange: 3,
		TickInterval:     100 * time.Millisecond,
		EventBuffer:      64,
	}
}

// Game 控制器需要的遊戲介面協作者
type Game struct {
	World      client.World
	UI         client.UI
	Commands   client.Commands
	Inventory  client.Inventory
	Automation client.Automation
	Notifier   client.Notifier
}

// JournalWriter 執行日誌（journal.Journal）
type JournalWriter interface {
	Append(entry journal.Entry) (journal.Record, error)
}

// PurchaseGate 商店自動購買的確認閘門（shop.Purchase）
//
// 閘門的商店視窗開啟時，是/否對話框完全交給它處理。
type PurchaseGate interface {
	Open() bool
	TryConfirm(text string) bool
}

// Options 選用的協作者
type Options struct {
	Strings *client.GameStrings // nil 表示英文預設值
	Journal JournalWriter       // nil 表示不寫日誌
	Metrics *metrics.Collector  // nil 表示不收集指標
	Clock   clock.Clock         // nil 表示系統時間
	Gates   []PurchaseGate      // 依序檢查
}

// Status 控制器狀態（給狀態伺服器與 CLI）
type Status struct {
	Stage         string             `json:"stage"`
	Running       bool               `json:"running"`
	ContinueAt    time.Time          `json:"continue_at"`
	Current       *types.CurrentItem `json:"current,omitempty"`
	CurrentName   string             `json:"current_name,omitempty"`
	CraftComplete bool               `json:"craft_complete"` // 材料已全部繳交，只剩領取成品
	Queue         []types.QueuedItem `json:"queue"`
	Remaining     int                `json:"remaining"`
}

// Controller 工坊製作控制器
type Controller struct {
	mu sync.Mutex

	cfg     Config
	jm      *jobmanager.JobManager
	catalog *catalog.Catalog
	game    Game
	strings *client.GameStrings
	journal JournalWriter
	metrics *metrics.Collector
	clock   clock.Clock
	gates   []PurchaseGate

	machine *machine
	events  chan Event
	stopped chan struct{}

	button           Button    // 等待下一個 tick 處理的按鈕
	continueAt       time.Time // 在此之前 tick 不做事
	fallbackAt       time.Time // 零值表示未啟用
	contributing     uint32    // 正在繳交的材料
	craftComplete    bool      // 最後一次讀到的即時快照是否只剩領取
	turnInSuppressed bool
}

// ============================================================================
// 核心方法實作
// ============================================================================

// New 建立控制器，初始階段為 Stopped
func New(cfg Config, jm *jobmanager.JobManager, game Game, opts Options) *Controller {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if opts.Strings == nil {
		opts.Strings = client.MustGameStrings()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	cat := jm.Catalog()
	if cat == nil {
		cat = catalog.New()
	}

	c := &Controller{
		cfg:     cfg,
		jm:      jm,
		catalog: cat,
		game:    game,
		strings: opts.Strings,
		journal: opts.Journal,
		metrics: opts.Metrics,
		clock:   opts.Clock,
		gates:   opts.Gates,
		events:  make(chan Event, cfg.EventBuffer),
		stopped: make(chan struct{}, 1),
	}
	c.machine = newMachine(StageStopped, c.onEnter)
	return c
}

// Run 處理 tick 與事件直到 ctx 結束
func (c *Controller) Run(ctx context.Context) error {
	ticker := c.clock.Ticker(c.cfg.TickInterval)
	defer ticker.Stop()

	log.Info("Controller started", "tickInterval", c.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			log.Info("Controller stopped")
			return nil
		case <-ticker.C:
			// 先處理已到達的事件，tick 才看得到最新的階段
			c.drain()
			c.Step(TickEvent())
		case ev := <-c.events:
			c.Step(ev)
		}
	}
}

// Post 把事件放進佇列；佇列已滿時丟棄並記錄警告
func (c *Controller) Post(ev Event) {
	select {
	case c.events <- ev:
	default:
		log.Warn("Event queue is full, dropping event", "event", ev.Kind)
	}
}

// Press 使用者按下按鈕
func (c *Controller) Press(b Button) {
	c.Post(ButtonEvent(b))
}

// Step 同步處理一個事件
func (c *Controller) Step(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handle(ev)
}

// drain 處理佇列中所有已到達的事件
func (c *Controller) drain() {
	for {
		select {
		case ev := <-c.events:
			c.Step(ev)
		default:
			return
		}
	}
}

// Stopped 每次從執行中回到 Stopped 時送出通知（未讀取的通知只保留一個）
func (c *Controller) Stopped() <-chan struct{} {
	return c.stopped
}

// Stage 目前階段
func (c *Controller) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current()
}

// Status 回傳目前狀態的副本
func (c *Controller) Status() Status {
	c.mu.Lock()
	stage := c.machine.Current()
	continueAt := c.continueAt
	complete := c.craftComplete
	c.mu.Unlock()

	st := c.jm.Snapshot()
	status := Status{
		Stage:      stage.String(),
		Running:    stage != StageStopped,
		ContinueAt: continueAt,
		Current:    st.CurrentlyCraftedItem,
		Queue:      st.ItemQueue,
		Remaining:  st.QueueTotal(),
	}
	if st.CurrentlyCraftedItem != nil {
		status.CurrentName = c.catalog.Name(st.CurrentlyCraftedItem.WorkshopItemID)
		status.CraftComplete = complete
	}
	return status
}

// ============================================================================
// client.Listener
// ============================================================================

func (c *Controller) RequestWindowSetup(entryCount int) {
	c.Post(RequestWindowSetupEvent(entryCount))
}

func (c *Controller) ItemSelectMenuShown() {
	c.Post(ItemSelectMenuShownEvent())
}

func (c *Controller) RequestWindowRefreshed(entryCount int) {
	c.Post(RequestWindowRefreshedEvent(entryCount))
}

func (c *Controller) YesNoShown(text string) {
	c.Post(YesNoShownEvent(text))
}

// StateReloaded 狀態檔被外部修改（snapshot.Manager.Watch）
func (c *Controller) StateReloaded(state types.State) {
	c.Post(StateReloadedEvent(state))
}

// ============================================================================
// 事件處理
// ============================================================================

func (c *Controller) handle(ev Event) {
	stage := c.machine.Current()
	if ev.ValidFor != stageAny && ev.ValidFor != stage {
		if ev.Kind == EventStateReloaded {
			log.Warn("Ignoring external state change while crafting", "stage", stage)
			return
		}
		log.Debug("Dropping stale event", "event", ev.Kind, "validFor", ev.ValidFor, "stage", stage)
		return
	}

	now := c.clock.Now()
	switch ev.Kind {
	case EventTick:
		c.tick(now)
	case EventButton:
		c.button = ev.Button
	case EventRequestWindowSetup:
		log.Debug("Request window setup", "stage", stage, "entries", ev.EntryCount)
		c.apply(now, requestWindowSetup(c.input(now, client.ObjectHandle{}), ev.EntryCount))
	case EventItemSelectMenuShown:
		c.apply(now, itemSelectMenuShown(c.input(now, client.ObjectHandle{})))
	case EventRequestWindowRefreshed:
		log.Debug("Request window refreshed", "stage", stage, "entries", ev.EntryCount)
		c.apply(now, requestWindowRefreshed(c.input(now, client.ObjectHandle{}), ev.EntryCount))
	case EventYesNoShown:
		c.yesNo(now, ev.Text)
	case EventStateReloaded:
		log.Info("Reloading state after external change")
		c.jm.Restore(*ev.State)
		c.updateQueueStats()
	}
}

func (c *Controller) tick(now time.Time) {
	station, ok := c.eligible()
	if !ok || now.Before(c.continueAt) {
		return
	}

	switch c.button {
	case ButtonPause, ButtonStop:
		c.button = ButtonNone
		if c.machine.Current() != StageStopped {
			log.Info("Stopping on user request")
			c.restoreAutomation()
			c.transition(StageStopped)
		}
		return
	case ButtonStart, ButtonResume:
		c.button = ButtonNone
		if c.machine.Current() == StageStopped {
			c.transition(StageTakeItemFromQueue)
		}
	}

	stage := c.machine.Current()
	if stage != StageStopped && stage != StageRequestStop && !c.game.Automation.Suppressed() {
		if err := c.game.Automation.SuppressForRun(); err != nil {
			log.Warn("Unable to suppress other automation", "error", err)
		}
	}

	switch stage {
	case StageRequestStop:
		c.restoreAutomation()
		c.transition(StageStopped)
	case StageOpenRequestItemWindow:
		if !c.fallbackAt.IsZero() && now.After(c.fallbackAt) {
			log.Info("Request window did not open, contributing again")
			c.apply(now, contributeMaterials(c.input(now, station)))
		}
	default:
		if h, ok := tickHandlers[stage]; ok {
			c.apply(now, h(c.input(now, station)))
		}
	}
}

// eligible 角色是否能操作製作台，回傳最近的製作台
func (c *Controller) eligible() (client.ObjectHandle, bool) {
	w := c.game.World
	if !w.LoggedIn() || !slices.Contains(c.cfg.Territories, w.Territory()) || w.Busy() {
		return client.ObjectHandle{}, false
	}
	station, distance, ok := w.NearestObject(c.cfg.StationIDs)
	if !ok || distance >= c.cfg.InteractionRange {
		return client.ObjectHandle{}, false
	}
	return station, true
}

func (c *Controller) yesNo(now time.Time, text string) {
	text = client.NormalizePrompt(text)
	log.Debug("YesNo prompt", "text", text)

	for _, gate := range c.gates {
		if !gate.Open() {
			continue
		}
		if gate.TryConfirm(text) {
			log.Info("Selecting 'yes'", "text", text)
			if err := c.game.Commands.ConfirmYesNo(0); err != nil {
				log.Warn("Unable to confirm purchase", "error", err)
			}
		}
		return
	}

	if c.machine.Current() == StageStopped {
		return
	}
	c.apply(now, yesNoShown(c.input(now, client.ObjectHandle{}), text))
}

func (c *Controller) input(now time.Time, station client.ObjectHandle) input {
	in := input{
		now:          now,
		stage:        c.machine.Current(),
		state:        c.jm.Snapshot(),
		catalog:      c.catalog,
		ui:           c.game.UI,
		inv:          c.game.Inventory,
		strings:      c.strings,
		station:      station,
		contributing: c.contributing,
	}
	if cur := in.state.CurrentlyCraftedItem; cur != nil {
		in.craft, in.known = c.catalog.ByWorkshopItemID(cur.WorkshopItemID)
	}
	return in
}

// ============================================================================
// 套用決策
// ============================================================================

// apply 依固定順序執行 outcome：狀態、訊息、日誌、自動化、計時、階段、指令
//
// 指令最後送出，送出時觸發的生命週期事件看到的已經是新階段。
func (c *Controller) apply(now time.Time, out outcome) {
	if out.state != nil {
		if err := c.jm.Commit(*out.state, out.persist); err != nil {
			log.Error("Failed to save state", "error", err)
		}
		c.updateQueueStats()
	}

	for _, msg := range out.diagnostics {
		c.game.Notifier.PrintError(msg)
	}
	for _, entry := range out.journal {
		c.record(entry)
	}

	switch out.turnIn {
	case turnInSuppress:
		if err := c.game.Automation.SuppressDuringTurnIn(); err != nil {
			log.Warn("Unable to suppress text advance", "error", err)
		}
		c.turnInSuppressed = true
	case turnInRestore:
		c.restoreTurnIn()
	}
	if out.contributing != nil {
		c.contributing = *out.contributing
	}
	if out.complete != nil {
		c.craftComplete = *out.complete
	}

	switch out.fallback {
	case fallbackArm:
		c.fallbackAt = now.Add(fallbackDelay)
	case fallbackClear:
		c.fallbackAt = time.Time{}
	}
	if out.delay > 0 {
		c.continueAt = now.Add(out.delay)
	}

	if out.next != stageAny && !c.transition(out.next) {
		return
	}

	for _, cmd := range out.commands {
		if err := cmd.Send(c.game.Commands); err != nil {
			log.Warn("Command failed, retrying later", "command", cmd, "error", err)
			if retry := now.Add(retryDelay); retry.After(c.continueAt) {
				c.continueAt = retry
			}
			return
		}
	}
}

// transition 切換階段；不合法的轉換代表程式錯誤，改為請求停止
func (c *Controller) transition(to Stage) bool {
	err := c.machine.Transition(to)
	if err == nil {
		return true
	}

	log.Error("Illegal stage change, stopping", "error", err)
	if cur := c.machine.Current(); cur != StageStopped && cur != StageRequestStop {
		if err := c.machine.Transition(StageRequestStop); err != nil {
			log.Error("Unable to request stop", "error", err)
		}
	}
	return false
}

// onEnter 每次進入新階段後由狀態機呼叫
func (c *Controller) onEnter(from, to Stage) {
	log.Debug("Changing stage", "from", from, "to", to)
	c.metrics.RecordTransition(to.String())

	switch {
	case to == StageStopped:
		c.fallbackAt = time.Time{}
		c.jm.SetRunning(false)
		select {
		case c.stopped <- struct{}{}:
		default:
		}
	case from == StageStopped:
		c.jm.SetRunning(true)
	}
	if to == StageTakeItemFromQueue {
		c.craftComplete = false
	}
	c.updateQueueStats()
}

func (c *Controller) record(entry journal.Entry) {
	switch entry.Type {
	case journal.RecordCraftTaken:
		c.metrics.RecordCraftTaken()
	case journal.RecordContributed:
		c.metrics.RecordContribution()
	case journal.RecordCraftCollected:
		c.metrics.RecordCraftCollected()
	case journal.RecordRunAborted:
		c.metrics.RecordAbort(entry.Detail)
	}

	if c.journal == nil {
		return
	}
	if _, err := c.journal.Append(entry); err != nil {
		log.Warn("Failed to append journal record", "type", entry.Type, "error", err)
	}
}

func (c *Controller) restoreAutomation() {
	c.restoreTurnIn()
	if err := c.game.Automation.RestoreRun(); err != nil {
		log.Warn("Unable to restore other automation", "error", err)
	}
}

func (c *Controller) restoreTurnIn() {
	if !c.turnInSuppressed {
		return
	}
	if err := c.game.Automation.RestoreTurnIn(); err != nil {
		log.Warn("Unable to restore text advance", "error", err)
	}
	c.turnInSuppressed = false
}

func (c *Controller) updateQueueStats() {
	if c.metrics == nil {
		return
	}
	st := c.jm.Snapshot()
	c.metrics.UpdateQueueStats(st.QueueTotal(), c.machine.Current() != StageStopped)
}

// shutdown 結束時恢復其他外掛
func (c *Controller) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restoreAutomation()
}
