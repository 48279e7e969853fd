// ============================================================================
// Workshop Queue 商店輔助 - 自動購買的數量計算與確認閘門
// ============================================================================
//
// Package: internal/shop
// 文件: shop.go
// 功能: 兩個商店輔助功能
//   1. 修理用暗物質（以金幣購買）：依暗物質團的數量計算缺少的 G6 暗物質
//   2. 青磷水桶（以部隊點數兌換）：依堆疊數計算要購買或補滿的數量
//
// 確認閘門:
//   Purchase 記錄「商店視窗是否開啟」「是否正在自動購買」「是否在等待
//   是/否確認」；控制器收到是/否對話框時只在閘門符合時自動確認，
//   與製作流程的階段無關。
//
// ============================================================================

package shop

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var log = slog.Default()

const (
	// StackSize 單一欄位的最大堆疊數
	StackSize = 999

	CeruleumTankItemID      uint32 = 10155
	DarkMatterClusterItemID uint32 = 10335
	Grade6DarkMatterItemID  uint32 = 10386

	// DarkMatterPerCluster 每個暗物質團對應的 G6 暗物質
	DarkMatterPerCluster = 5
)

var (
	// ErrInvalidStacks 堆疊數不是合法的整數
	ErrInvalidStacks = errors.New("shop: invalid stack count")
	// ErrShopClosed 商店視窗沒有開啟
	ErrShopClosed = errors.New("shop: window is not open")
)

// Inventory 計算購買數量所需的背包資訊
type Inventory struct {
	FreeSlots     int // 空欄位
	FullStacks    int // 已滿的堆疊
	PartialStacks int // 未滿的堆疊
	Owned         int // 總持有數
}

// ParseBuyRequest 「再買 N 疊」：N 必須大於 0，最多用到所有空欄位
func ParseBuyRequest(args string, inv Inventory, maxPurchasable int) (int, error) {
	stacks, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || stacks <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStacks, args)
	}

	stacks = min(inv.FreeSlots, stacks)
	return max(0, min(maxPurchasable, stacks*StackSize)), nil
}

// ParseFillRequest 「補到 N 疊」：N 可為 0（只補滿現有的未滿堆疊）
//
// 目標數量至少涵蓋現有的堆疊，最多不超過現有堆疊加上空欄位。
func ParseFillRequest(args string, inv Inventory, maxPurchasable int) (int, error) {
	stacks, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil || stacks < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidStacks, args)
	}

	used := inv.FullStacks + inv.PartialStacks
	target := min((used+inv.FreeSlots)*StackSize, max(stacks*StackSize, used*StackSize))
	log.Debug("Fill request", "stacks", stacks, "target", target, "owned", inv.Owned)

	if target <= inv.Owned {
		return 0, nil
	}
	return max(0, min(maxPurchasable, target-inv.Owned)), nil
}

// MissingDarkMatter 為所有暗物質團準備修理材料還缺多少
func MissingDarkMatter(clusters, owned int) int {
	return max(0, clusters*DarkMatterPerCluster-owned)
}

// MaxItemsToPurchase 目前貨幣最多能買幾個
func MaxItemsToPurchase(currency, price int) int {
	if price <= 0 {
		return 0
	}
	return currency / price
}

// FormatStackCount 以「N 疊 + 零頭」表示數量
func FormatStackCount(n int) string {
	full, partial := n/StackSize, n%StackSize
	unit := "stacks"
	if full == 1 {
		unit = "stack"
	}
	if partial > 0 {
		return fmt.Sprintf("%d %s + %d", full, unit, partial)
	}
	return fmt.Sprintf("%d %s", full, unit)
}

// ============================================================================
// 確認閘門
// ============================================================================

// Purchase 一個商店輔助的自動購買狀態
type Purchase struct {
	name    string // 顯示用的物品名稱（複數）
	stacked bool   // 以堆疊數顯示數量
	pattern *regexp.Regexp

	mu        sync.Mutex
	enabled   bool
	open      bool
	autoBuy   bool
	awaiting  bool
	itemsLeft int
}

// NewPurchase 建立閘門；pattern 比對該商店的購買確認文字
func NewPurchase(name string, stacked bool, pattern *regexp.Regexp) *Purchase {
	return &Purchase{name: name, stacked: stacked, pattern: pattern, enabled: true}
}

// NewRepairKitPurchase 修理用暗物質（金幣）
func NewRepairKitPurchase(gilPattern *regexp.Regexp) *Purchase {
	return NewPurchase("grade 6 dark matter", false, gilPattern)
}

// NewCeruleumTankPurchase 青磷水桶（部隊點數）
func NewCeruleumTankPurchase(creditPattern *regexp.Regexp) *Purchase {
	return NewPurchase("ceruleum tanks", true, creditPattern)
}

// SetEnabled 對應設定中的計算機開關；停用時視同視窗未開啟
func (p *Purchase) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
	if !enabled {
		p.resetLocked()
	}
}

// SetOpen 商店視窗開啟或關閉；關閉時取消進行中的購買
func (p *Purchase) SetOpen(open bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open = open
	if !open {
		p.resetLocked()
	}
}

// Open 商店視窗是否開啟且功能啟用
func (p *Purchase) Open() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open && p.enabled
}

// Start 開始自動購買 quantity 個，回傳要顯示給使用者的訊息
func (p *Purchase) Start(quantity int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open || !p.enabled {
		return "", ErrShopClosed
	}
	if quantity <= 0 {
		return fmt.Sprintf("Not buying %s, you already have enough.", p.name), nil
	}

	p.autoBuy = true
	p.itemsLeft = quantity
	amount := strconv.Itoa(quantity)
	if p.stacked {
		amount = FormatStackCount(quantity)
	}
	log.Info("Starting auto-buy", "item", p.name, "quantity", quantity)
	return fmt.Sprintf("Starting purchase of %s %s.", amount, p.name), nil
}

// Arm 已送出一次購買，等待遊戲顯示確認對話框
func (p *Purchase) Arm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.autoBuy {
		p.awaiting = true
	}
}

// AutoBuy 是否正在自動購買
func (p *Purchase) AutoBuy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.autoBuy
}

// AwaitingConfirmation 是否在等待確認
func (p *Purchase) AwaitingConfirmation() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.awaiting
}

// TryConfirm 對話框文字符合且正在等待確認時回傳 true，並解除等待
func (p *Purchase) TryConfirm(text string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.autoBuy || !p.awaiting || !p.pattern.MatchString(text) {
		log.Debug("Not a purchase confirmation match", "item", p.name, "autoBuy", p.autoBuy, "awaiting", p.awaiting)
		return false
	}
	p.awaiting = false
	return true
}

// Confirmed 一次購買完成；買齊時結束自動購買
func (p *Purchase) Confirmed(bought int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.itemsLeft -= bought
	if p.itemsLeft <= 0 {
		p.resetLocked()
	}
}

// ItemsLeft 還要買多少
func (p *Purchase) ItemsLeft() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.itemsLeft
}

// Cancel 取消自動購買
func (p *Purchase) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
}

func (p *Purchase) resetLocked() {
	p.autoBuy = false
	p.awaiting = false
	p.itemsLeft = 0
}
