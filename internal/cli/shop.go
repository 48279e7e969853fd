package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/internal/shop"
)

// ============================================================================
// shop
// ============================================================================

// inventoryFlags 由使用者輸入的背包與貨幣資訊
type inventoryFlags struct {
	inv      shop.Inventory
	currency int
	price    int
}

func (f *inventoryFlags) register(cmd *cobra.Command, currency string) {
	cmd.Flags().IntVar(&f.inv.FreeSlots, "free-slots", 0, "empty inventory slots")
	cmd.Flags().IntVar(&f.inv.FullStacks, "full-stacks", 0, "stacks that already hold 999")
	cmd.Flags().IntVar(&f.inv.PartialStacks, "partial-stacks", 0, "stacks holding less than 999")
	cmd.Flags().IntVar(&f.inv.Owned, "owned", 0, "total quantity already owned")
	cmd.Flags().IntVar(&f.currency, currency, 0, "available "+currency)
	cmd.Flags().IntVar(&f.price, "price", 0, "price per item")
	cmd.MarkFlagRequired("price")
}

func buildShopCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shop",
		Short: "Work out how many items to buy from the workshop vendors",
	}

	cmd.AddCommand(buildShopStacksCommand("buy <stacks>",
		"Buy this many more stacks of ceruleum tanks",
		shop.ParseBuyRequest))
	cmd.AddCommand(buildShopStacksCommand("fill <stacks>",
		"Buy ceruleum tanks until there are this many full stacks",
		shop.ParseFillRequest))
	cmd.AddCommand(buildShopRepairCommand())

	return cmd
}

type stackRequest func(args string, inv shop.Inventory, maxPurchasable int) (int, error)

func buildShopStacksCommand(use, short string, parse stackRequest) *cobra.Command {
	var flags inventoryFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := parse(args[0], flags.inv, shop.MaxItemsToPurchase(flags.currency, flags.price))
			if err != nil {
				return err
			}

			purchase := shop.NewCeruleumTankPurchase(client.MustGameStrings().PurchaseItemForCompanyCredits)
			return startPurchase(cmd, purchase, quantity)
		},
	}
	flags.register(cmd, "credits")

	return cmd
}

func buildShopRepairCommand() *cobra.Command {
	var flags inventoryFlags
	var clusters int

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Buy the grade 6 dark matter needed to use every dark matter cluster",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			missing := shop.MissingDarkMatter(clusters, flags.inv.Owned)
			quantity := min(missing, shop.MaxItemsToPurchase(flags.currency, flags.price))

			purchase := shop.NewRepairKitPurchase(client.MustGameStrings().PurchaseItemForGil)
			return startPurchase(cmd, purchase, quantity)
		},
	}
	flags.register(cmd, "gil")
	cmd.Flags().IntVar(&clusters, "clusters", 0, "dark matter clusters owned")

	return cmd
}

// startPurchase 以與遊戲內相同的訊息顯示購買計畫
func startPurchase(cmd *cobra.Command, purchase *shop.Purchase, quantity int) error {
	purchase.SetOpen(true)
	defer purchase.SetOpen(false)

	msg, err := purchase.Start(quantity)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), msg)
	return nil
}
