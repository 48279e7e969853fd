package cli

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/controller"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/internal/metrics"
	"github.com/ChuLiYu/workshop-queue/internal/recipe"
	"github.com/ChuLiYu/workshop-queue/internal/storage/journal"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

// ============================================================================
// materials
// ============================================================================

func buildMaterialsCommand() *cobra.Command {
	var craftable, gatherable, workshopOnly bool

	cmd := &cobra.Command{
		Use:   "materials",
		Short: "List the materials needed for the current craft and the queue",
		Long: `Expand the workshop materials of everything still queued into the full
crafting tree. Craftable intermediates are listed in the order they have to
be crafted; shop items are never expanded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := ws.jm.Snapshot()

			if workshopOnly {
				fmt.Fprintln(out, jobmanager.FormatMaterials(jobmanager.MaterialList(state, ws.catalog)))
				return nil
			}

			book, err := recipe.LoadBook(ws.cfg.Recipes.Patterns, ws.cfg.Recipes.Vendors)
			if err != nil {
				return fmt.Errorf("failed to load recipes: %w", err)
			}
			items, err := resolveMaterials(state, ws.catalog, book, nil)
			if err != nil {
				return err
			}

			switch {
			case craftable:
				fmt.Fprintln(out, jobmanager.FormatMaterials(filterType(items, types.IngredientCraftable)))
			case gatherable:
				fmt.Fprintln(out, jobmanager.FormatMaterials(filterType(items, types.IngredientGatherable)))
			default:
				printMaterials(out, items)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&craftable, "craftable", false, "only items that have to be crafted, in crafting order")
	cmd.Flags().BoolVar(&gatherable, "gatherable", false, "only items that can be gathered or brought back by ventures")
	cmd.Flags().BoolVar(&workshopOnly, "workshop", false, "only the workshop materials, without expanding recipes")
	cmd.MarkFlagsMutuallyExclusive("craftable", "gatherable", "workshop")

	return cmd
}

// resolveMaterials 展開佇列需要的所有材料；collector 可為 nil
func resolveMaterials(state types.State, cat *catalog.Catalog, src recipe.Source, collector *metrics.Collector) ([]types.Ingredient, error) {
	top := jobmanager.MaterialList(state, cat)
	if len(top) == 0 {
		return nil, nil
	}

	start := time.Now()
	items, err := recipe.NewResolver(src).Resolve(top)
	collector.ObserveResolve(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve materials: %w", err)
	}
	return items, nil
}

func filterType(items []types.Ingredient, kind types.IngredientType) []types.Ingredient {
	var result []types.Ingredient
	for _, item := range items {
		if item.Type == kind {
			result = append(result, item)
		}
	}
	return result
}

func printMaterials(out io.Writer, items []types.Ingredient) {
	if len(items) == 0 {
		fmt.Fprintln(out, "Nothing queued")
		return
	}

	sections := []struct {
		title string
		kind  types.IngredientType
	}{
		{"Craft (in order)", types.IngredientCraftable},
		{"Gather", types.IngredientGatherable},
		{"Buy", types.IngredientShopItem},
		{"Other", types.IngredientOther},
	}
	for _, section := range sections {
		list := filterType(items, section.kind)
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", section.title)
		for _, item := range list {
			fmt.Fprintf(out, "  %dx %s\n", item.TotalQuantity, item.Name)
		}
	}
}

// ============================================================================
// history
// ============================================================================

func buildHistoryCommand() *cobra.Command {
	var rotate bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the run journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if rotate {
				j, err := journal.Open(cfg.Journal.Path, nil, false)
				if err != nil {
					return err
				}
				backup, err := j.Rotate()
				if closeErr := j.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return fmt.Errorf("failed to rotate journal: %w", err)
				}
				fmt.Fprintf(out, "Journal saved as %s\n", backup)
				return nil
			}

			records, err := journal.ReadAll(cfg.Journal.Path)
			if err != nil {
				return fmt.Errorf("failed to read journal: %w", err)
			}
			return printHistory(out, records, namesFor(cfg))
		},
	}

	cmd.Flags().BoolVar(&rotate, "rotate", false, "start a new journal and keep the old one as a backup")

	return cmd
}

// namesFor 載入目錄只為了顯示名稱；失敗時使用空目錄
func namesFor(cfg *Config) *catalog.Catalog {
	crafts, err := catalog.LoadFiles(cfg.Catalog.Patterns)
	if err != nil {
		log.Warn("Catalog unavailable, showing ids only", "error", err)
		return catalog.New()
	}
	return catalog.NewWith(crafts)
}

func printHistory(out io.Writer, records []journal.Record, cat *catalog.Catalog) error {
	if len(records) == 0 {
		fmt.Fprintln(out, "Journal is empty")
		return nil
	}

	counts := make(map[journal.RecordType]int)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tEVENT\tCRAFT\tDETAIL")
	for _, r := range records {
		counts[r.Type]++
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			r.Seq,
			time.UnixMilli(r.Timestamp).Format(time.DateTime),
			r.Type,
			craftLabel(cat, r.WorkshopItemID),
			recordDetail(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d crafts taken, %d collected, %d contributions, %d aborted runs\n",
		counts[journal.RecordCraftTaken],
		counts[journal.RecordCraftCollected],
		counts[journal.RecordContributed],
		counts[journal.RecordRunAborted])
	return nil
}

func craftLabel(cat *catalog.Catalog, workshopItemID uint32) string {
	if craft, ok := cat.ByWorkshopItemID(workshopItemID); ok {
		return craft.Name
	}
	return fmt.Sprintf("#%d", workshopItemID)
}

func recordDetail(r journal.Record) string {
	switch r.Type {
	case journal.RecordContributed:
		return fmt.Sprintf("%dx item %d", r.Quantity, r.ItemID)
	case journal.RecordPhaseAdvanced:
		return fmt.Sprintf("phase %d", r.Quantity)
	default:
		return r.Detail
	}
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and queue status",
		Long:  "Display the configuration, the saved queue and, when the status server is reachable, the live stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace()
			if err != nil {
				return err
			}
			return showStatus(cmd.OutOrStdout(), ws)
		},
	}
	return cmd
}

func showStatus(out io.Writer, ws *workspace) error {
	cfg := ws.cfg

	fmt.Fprintln(out, "\n╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║           Workshop Queue Status                           ║")
	fmt.Fprintln(out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	fmt.Fprintln(out, "📋 Configuration:")
	fmt.Fprintf(out, "  ├─ Config File:   %s\n", configFile)
	fmt.Fprintf(out, "  ├─ State File:    %s\n", cfg.State.Path)
	fmt.Fprintf(out, "  ├─ Journal:       %s\n", cfg.Journal.Path)
	fmt.Fprintf(out, "  └─ Catalog:       %d crafts\n", len(ws.catalog.Crafts()))
	fmt.Fprintln(out)

	state := ws.jm.Snapshot()
	stats := ws.jm.Stats()
	fmt.Fprintln(out, "📦 Queue:")
	if cur := state.CurrentlyCraftedItem; cur != nil {
		fmt.Fprintf(out, "  ├─ Current:       %s (%d phases complete)\n", ws.catalog.Name(cur.WorkshopItemID), cur.PhasesComplete)
	} else {
		fmt.Fprintln(out, "  ├─ Current:       none")
	}
	fmt.Fprintf(out, "  ├─ Entries:       %d\n", stats["entries"])
	fmt.Fprintf(out, "  ├─ Remaining:     %d\n", stats["remaining"])
	fmt.Fprintf(out, "  └─ Presets:       %d\n", stats["presets"])
	fmt.Fprintln(out)

	fmt.Fprintln(out, "📡 Status Server:")
	if !cfg.Status.Enabled {
		fmt.Fprintln(out, "  └─ Status: ⚠️  Disabled")
	} else if live, err := fetchStatus(cfg.Status.Addr); err != nil {
		fmt.Fprintf(out, "  └─ Not running (%s)\n", localURL(cfg.Status.Addr))
	} else {
		fmt.Fprintf(out, "  ├─ Stage:         %s\n", live.Stage)
		if live.CraftComplete {
			fmt.Fprintf(out, "  ├─ Current:       %s is ready to collect\n", live.CurrentName)
		}
		fmt.Fprintf(out, "  └─ Metrics:       %s/metrics\n", localURL(cfg.Status.Addr))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "═══════════════════════════════════════════════════════════")
	return nil
}

// fetchStatus 向執行中的 run 命令查詢即時狀態
func fetchStatus(addr string) (controller.Status, error) {
	httpClient := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := httpClient.Get(localURL(addr) + "/status")
	if err != nil {
		return controller.Status{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return controller.Status{}, fmt.Errorf("status server returned %s", resp.Status)
	}

	var status controller.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return controller.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return status, nil
}

func localURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}
