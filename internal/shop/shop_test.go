package shop

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// 數量計算
// ============================================================================

func TestParseBuyRequest(t *testing.T) {
	tests := []struct {
		name    string
		args    string
		inv     Inventory
		max     int
		want    int
		wantErr bool
	}{
		{name: "two stacks", args: "2", inv: Inventory{FreeSlots: 10}, max: 100000, want: 1998},
		{name: "limited by free slots", args: "5", inv: Inventory{FreeSlots: 1}, max: 100000, want: 999},
		{name: "limited by currency", args: "3", inv: Inventory{FreeSlots: 10}, max: 1500, want: 1500},
		{name: "no free slots", args: "3", inv: Inventory{}, max: 1500, want: 0},
		{name: "zero is rejected", args: "0", wantErr: true},
		{name: "negative is rejected", args: "-1", wantErr: true},
		{name: "not a number", args: "lots", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBuyRequest(tt.args, tt.inv, tt.max)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStacks)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFillRequest(t *testing.T) {
	tests := []struct {
		name string
		args string
		inv  Inventory
		max  int
		want int
	}{
		{
			name: "fill partial stack only",
			args: "0",
			inv:  Inventory{FreeSlots: 5, FullStacks: 1, PartialStacks: 1, Owned: 999 + 500},
			max:  100000,
			want: 499,
		},
		{
			name: "fill up to four stacks",
			args: "4",
			inv:  Inventory{FreeSlots: 5, FullStacks: 1, PartialStacks: 1, Owned: 1499},
			max:  100000,
			want: 4*999 - 1499,
		},
		{
			name: "target capped by free slots",
			args: "10",
			inv:  Inventory{FreeSlots: 1, PartialStacks: 1, Owned: 10},
			max:  100000,
			want: 2*999 - 10,
		},
		{
			name: "already enough",
			args: "1",
			inv:  Inventory{FullStacks: 2, Owned: 1998},
			max:  100000,
			want: 0,
		},
		{
			name: "limited by currency",
			args: "2",
			inv:  Inventory{FreeSlots: 2},
			max:  100,
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFillRequest(tt.args, tt.inv, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFillRequest("-2", Inventory{}, 0)
	assert.ErrorIs(t, err, ErrInvalidStacks)
}

func TestMissingDarkMatter(t *testing.T) {
	assert.Equal(t, 15, MissingDarkMatter(4, 5))
	assert.Equal(t, 0, MissingDarkMatter(1, 9))
	assert.Equal(t, 0, MissingDarkMatter(0, 0))
}

func TestMaxItemsToPurchase(t *testing.T) {
	assert.Equal(t, 3, MaxItemsToPurchase(1000, 280))
	assert.Equal(t, 0, MaxItemsToPurchase(1000, 0))
}

func TestFormatStackCount(t *testing.T) {
	assert.Equal(t, "0 stacks + 12", FormatStackCount(12))
	assert.Equal(t, "1 stack", FormatStackCount(999))
	assert.Equal(t, "2 stacks + 1", FormatStackCount(1999))
}

// ============================================================================
// 確認閘門
// ============================================================================

var creditPattern = regexp.MustCompile(`^Exchange .+ for .+ company credits\?$`)

func TestPurchaseGate(t *testing.T) {
	p := NewCeruleumTankPurchase(creditPattern)
	prompt := "Exchange 999 ceruleum tanks for 99,900 company credits?"

	_, err := p.Start(999)
	assert.ErrorIs(t, err, ErrShopClosed)

	p.SetOpen(true)
	require.True(t, p.Open())

	msg, err := p.Start(0)
	require.NoError(t, err)
	assert.Equal(t, "Not buying ceruleum tanks, you already have enough.", msg)
	assert.False(t, p.AutoBuy())

	msg, err = p.Start(1000)
	require.NoError(t, err)
	assert.Equal(t, "Starting purchase of 1 stack + 1 ceruleum tanks.", msg)
	assert.True(t, p.AutoBuy())

	assert.False(t, p.TryConfirm(prompt), "not armed yet")

	p.Arm()
	assert.True(t, p.AwaitingConfirmation())
	assert.False(t, p.TryConfirm("Purchase 5 potions for 100 gil?"))
	assert.True(t, p.TryConfirm(prompt))
	assert.False(t, p.TryConfirm(prompt), "confirms once per arm")

	p.Confirmed(999)
	assert.Equal(t, 1, p.ItemsLeft())
	assert.True(t, p.AutoBuy())
	p.Confirmed(1)
	assert.False(t, p.AutoBuy())
}

func TestPurchaseClosingCancels(t *testing.T) {
	p := NewRepairKitPurchase(regexp.MustCompile(`^Purchase .+ for .+ gil\?$`))
	p.SetOpen(true)
	msg, err := p.Start(15)
	require.NoError(t, err)
	assert.Equal(t, "Starting purchase of 15 grade 6 dark matter.", msg)
	p.Arm()

	p.SetOpen(false)
	assert.False(t, p.Open())
	assert.False(t, p.AutoBuy())
	assert.False(t, p.AwaitingConfirmation())
}

func TestPurchaseDisabled(t *testing.T) {
	p := NewRepairKitPurchase(regexp.MustCompile(`^Purchase .+ for .+ gil\?$`))
	p.SetOpen(true)
	p.SetEnabled(false)

	assert.False(t, p.Open())
	_, err := p.Start(5)
	assert.ErrorIs(t, err, ErrShopClosed)
}
