package sim

import (
	"fmt"
	"strconv"
)

// ============================================================================
// 商店
// ============================================================================

// stackSize 背包單格上限
const stackSize = 999

// Currency 商店收取的貨幣
type Currency int

const (
	Gil Currency = iota
	CompanyCredits
)

// ShopItem 商店販售的一項物品
type ShopItem struct {
	ItemID   uint32
	Name     string // 複數名稱，出現在確認文字中
	Price    int
	Currency Currency
	PerBuy   int // 單次購買上限，0 表示不限
}

// prompt 遊戲顯示的購買確認文字
func (s ShopItem) prompt(quantity int) string {
	total := groupThousands(quantity * s.Price)
	if s.Currency == CompanyCredits {
		return fmt.Sprintf("Exchange %d %s for %s company credits?", quantity, s.Name, total)
	}
	return fmt.Sprintf("Purchase %d %s for %s gil?", quantity, s.Name, total)
}

// PurchaseWindow 商店開啟時負責自動購買的一方
type PurchaseWindow interface {
	SetOpen(open bool)
	AutoBuy() bool
	ItemsLeft() int
	Arm()
	Confirmed(bought int)
}

type vendor struct {
	window  PurchaseWindow
	item    ShopItem
	pending int
}

// OpenShop 開啟商店視窗並通知 window
func (w *Workshop) OpenShop(window PurchaseWindow, item ShopItem) {
	w.mu.Lock()
	w.shop = &vendor{window: window, item: item}
	w.mu.Unlock()

	window.SetOpen(true)
}

// CloseShop 關閉商店視窗，未確認的購買一併取消
func (w *Workshop) CloseShop() {
	w.mu.Lock()
	shop := w.shop
	w.shop = nil
	if w.promptKind == promptPurchase {
		w.setPromptLocked(promptNone, "")
	}
	w.mu.Unlock()

	if shop != nil {
		shop.window.SetOpen(false)
	}
}

// BuyFromShop 送出一次購買並顯示確認對話框
//
// 數量取剩餘需求與單次上限中較小者。
func (w *Workshop) BuyFromShop() error {
	w.mu.Lock()
	shop := w.shop
	if shop == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: no shop open", ErrUnexpected)
	}
	quantity := shop.window.ItemsLeft()
	if !shop.window.AutoBuy() || quantity <= 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: nothing to buy", ErrUnexpected)
	}
	if shop.item.PerBuy > 0 {
		quantity = min(quantity, shop.item.PerBuy)
	}
	shop.pending = quantity
	prompt := shop.item.prompt(quantity)
	w.setPromptLocked(promptPurchase, prompt)
	listener := w.listener
	w.mu.Unlock()

	log.Debug("Shop purchase requested", "item", shop.item.Name, "quantity", quantity)
	shop.window.Arm()
	if listener != nil {
		listener.YesNoShown(prompt)
	}
	return nil
}

// confirmPurchaseLocked 對話框選「是」：物品入袋並回報給購買方
func (w *Workshop) confirmPurchaseLocked() error {
	if w.shop == nil {
		return fmt.Errorf("%w: shop closed before confirming", ErrUnexpected)
	}
	bought := w.shop.pending
	w.shop.pending = 0
	for left := bought; left > 0; left -= stackSize {
		w.stacks[w.shop.item.ItemID] = append(w.stacks[w.shop.item.ItemID], uint32(min(left, stackSize)))
	}
	w.shop.window.Confirmed(bought)
	return nil
}

// groupThousands 以逗號分隔千位，與遊戲顯示一致
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
