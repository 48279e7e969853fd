package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/internal/client/sim"
	"github.com/ChuLiYu/workshop-queue/internal/controller"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/internal/metrics"
	"github.com/ChuLiYu/workshop-queue/internal/recipe"
	"github.com/ChuLiYu/workshop-queue/internal/server"
	"github.com/ChuLiYu/workshop-queue/internal/shop"
	"github.com/ChuLiYu/workshop-queue/internal/storage/journal"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// runOptions run 命令的旗標
type runOptions struct {
	stock bool // 在模擬工坊放入整個佇列需要的材料
	keep  bool // 佇列清空後繼續執行，直到收到信號
}

func buildRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start crafting the queue",
		Long: `Start the controller against the simulated workshop and craft every queued
item. Progress is saved after every step; an interrupted run continues where it
left off.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSystem(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stock, "stock", false, "stock the simulated workshop with every material the queue needs")
	cmd.Flags().BoolVar(&opts.keep, "keep-running", false, "keep running after the queue is empty")

	return cmd
}

func runSystem(ctx context.Context, out io.Writer, cfg *Config, opts runOptions) error {
	log.Info("Starting workshop queue", "config", configFile)

	cat := catalog.New()
	if err := <-catalog.LoadAsync(ctx, cat, cfg.Catalog.Patterns); err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	store, state, err := openState(cfg)
	if err != nil {
		return err
	}
	jm := jobmanager.NewJobManager(state, cat, saverFor(store, cfg.State.Backups))

	gs, err := client.NewGameStrings(cfg.Strings)
	if err != nil {
		return fmt.Errorf("invalid strings configuration: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	printPlan(out, cfg, state, cat, collector)

	workshop := sim.New(cat, gs)
	if opts.stock {
		stockWorkshop(workshop, state)
	}

	jnl, err := journal.Open(cfg.Journal.Path, nil, cfg.Journal.SyncOnAppend)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	repairKits := shop.NewRepairKitPurchase(gs.PurchaseItemForGil)
	repairKits.SetEnabled(state.EnableRepairKitCalculator)
	ceruleumTanks := shop.NewCeruleumTankPurchase(gs.PurchaseItemForCompanyCredits)
	ceruleumTanks.SetEnabled(state.EnableCeruleumTankCalculator)

	ctrl := controller.New(controllerConfig(cfg), jm, controller.Game{
		World:      workshop,
		UI:         workshop,
		Commands:   workshop,
		Inventory:  workshop,
		Automation: workshop,
		Notifier:   workshop,
	}, controller.Options{
		Strings: gs,
		Journal: jnl,
		Metrics: collector,
		Gates:   []controller.PurchaseGate{repairKits, ceruleumTanks},
	})
	workshop.SetListener(ctrl)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gctx)
	defer cancel()

	g.Go(func() error {
		return ctrl.Run(runCtx)
	})
	if cfg.State.Watch {
		g.Go(func() error {
			return store.Watch(runCtx, ctrl.StateReloaded)
		})
	}
	if cfg.Status.Enabled {
		srv := server.NewServer(server.Config{Addr: cfg.Status.Addr, Debug: cfg.Status.Debug}, ctrl)
		g.Go(func() error {
			return srv.Run(runCtx)
		})
	}
	if !opts.keep {
		g.Go(func() error {
			select {
			case <-ctrl.Stopped():
				log.Info("Run finished, shutting down")
				cancel()
			case <-runCtx.Done():
			}
			return nil
		})
	}

	ctrl.Press(controller.ButtonStart)

	if err := g.Wait(); err != nil {
		return err
	}

	printSummary(out, jm.Snapshot(), cat, workshop)
	return nil
}

// stockWorkshop 為目前製作與佇列中的每一個數量放入材料
func stockWorkshop(workshop *sim.Workshop, state types.State) {
	if cur := state.CurrentlyCraftedItem; cur != nil {
		if err := workshop.Stock(cur.WorkshopItemID, 1); err != nil {
			log.Warn("Unable to stock current craft", "error", err)
		}
	}
	for _, item := range state.ItemQueue {
		if item.Quantity <= 0 {
			continue
		}
		if err := workshop.Stock(item.WorkshopItemID, item.Quantity); err != nil {
			log.Warn("Unable to stock queued craft", "error", err)
		}
	}
}

// printPlan 顯示佇列與展開後的材料；沒有配方資料時只顯示佇列
func printPlan(out io.Writer, cfg *Config, state types.State, cat *catalog.Catalog, collector *metrics.Collector) {
	if err := printQueue(out, state, cat); err != nil {
		log.Warn("Unable to print queue", "error", err)
	}

	book, err := recipe.LoadBook(cfg.Recipes.Patterns, cfg.Recipes.Vendors)
	if err != nil {
		log.Warn("Recipe data unavailable, skipping material plan", "error", err)
		return
	}
	items, err := resolveMaterials(state, cat, book, collector)
	if err != nil {
		log.Warn("Unable to resolve materials", "error", err)
		return
	}
	if len(items) > 0 {
		fmt.Fprintln(out)
		printMaterials(out, items)
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, state types.State, cat *catalog.Catalog, workshop *sim.Workshop) {
	fmt.Fprintln(out)
	for _, msg := range workshop.Errors() {
		fmt.Fprintf(out, "❌ %s\n", msg)
	}
	if cur := state.CurrentlyCraftedItem; cur != nil {
		fmt.Fprintf(out, "Stopped while crafting %s (%d phases complete)\n", cat.Name(cur.WorkshopItemID), cur.PhasesComplete)
	}
	fmt.Fprintf(out, "Run finished: %d crafts left in the queue\n", state.QueueTotal())
}
