// ============================================================================
// Workshop Queue CLI - 命令列介面
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: 以 Cobra 建立命令樹，讀取 YAML 設定並組裝各個元件
//
// Command Structure:
//   workshop                         # Root command
//   ├── run                          # 執行佇列直到清空或收到信號
//   ├── queue add|set|remove|list    # 編輯佇列
//   │   ├── clear-current            # 放棄目前的製作進度
//   │   ├── import -f                # 從文字匯入（"3x Name" 每行一項）
//   │   └── export                   # 輸出成可再匯入的文字
//   ├── preset save|import|delete|list
//   ├── materials                    # 展開佇列需要的材料
//   │   └── --craftable, --gatherable
//   ├── history                      # 重放執行日誌
//   │   └── --rotate
//   ├── status                       # 顯示設定與佇列狀態
//   ├── shop buy|fill|repair         # 商店購買數量計算
//   ├── --config, -c                 # 設定檔（預設 configs/default.yaml）
//   └── --version
//
// Configuration Management:
//   YAML 設定檔，未填的欄位由 applyDefaults 補上預設值：
//   - state:    狀態檔路徑、備份數量、是否監看外部修改
//   - journal:  執行日誌路徑
//   - catalog:  工坊目錄資料檔（glob，支援 **）
//   - recipes:  配方資料檔與可購買的商人
//   - workshop: 工坊區域、製作台、互動距離、tick 間隔
//   - strings:  對話與選單文字（其他語系的用戶端）
//   - metrics / status: Prometheus 指標與狀態伺服器
//
// Signal Handling:
//   run 命令收到 SIGINT/SIGTERM 時停止控制器並恢復其他自動化功能，
//   製作進度已在每次變更時寫回狀態檔，下次啟動可以繼續。
//
// ============================================================================

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/internal/client"
	"github.com/ChuLiYu/workshop-queue/internal/controller"
	"github.com/ChuLiYu/workshop-queue/internal/jobmanager"
	"github.com/ChuLiYu/workshop-queue/internal/snapshot"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var log = slog.Default()

// defaultVendorIDs 販售工坊材料的商人
var defaultVendorIDs = []uint32{262461, 262462, 262463, 262471, 262472, 262692, 262422, 262211}

// Config represents the complete system configuration structure
type Config struct {
	State struct {
		Path    string `yaml:"path"`
		Backups int    `yaml:"backups"` // 0 表示不保留備份
		Watch   bool   `yaml:"watch"`
	} `yaml:"state"`

	Journal struct {
		Path         string `yaml:"path"`
		SyncOnAppend bool   `yaml:"sync_on_append"`
	} `yaml:"journal"`

	Catalog struct {
		Patterns []string `yaml:"patterns"`
	} `yaml:"catalog"`

	Recipes struct {
		Patterns []string `yaml:"patterns"`
		Vendors  []uint32 `yaml:"vendors"`
	} `yaml:"recipes"`

	Workshop struct {
		Territories      []uint16      `yaml:"territories"`
		Stations         []uint32      `yaml:"stations"`
		InteractionRange float64       `yaml:"interaction_range"`
		TickInterval     time.Duration `yaml:"tick_interval"`
		EventBuffer      int           `yaml:"event_buffer"`
	} `yaml:"workshop"`

	Strings client.Phrases `yaml:"strings"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Status struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
		Debug   bool   `yaml:"debug"`
	} `yaml:"status"`
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "workshop",
		Short: "Workshop Queue: automated free company workshop crafting",
		Long: `Workshop Queue crafts a queue of workshop projects:
- takes one unit at a time from a persistent queue
- walks the fabrication station dialogs and contributes every phase
- resolves the full material tree for everything still queued`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildQueueCommand())
	rootCmd.AddCommand(buildPresetCommand())
	rootCmd.AddCommand(buildMaterialsCommand())
	rootCmd.AddCommand(buildHistoryCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildShopCommand())

	return rootCmd
}

// ============================================================================
// 設定
// ============================================================================

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := controller.DefaultConfig()

	if cfg.State.Path == "" {
		cfg.State.Path = "state/workshop.json"
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = filepath.Join(filepath.Dir(cfg.State.Path), "journal.log")
	}
	if len(cfg.Catalog.Patterns) == 0 {
		cfg.Catalog.Patterns = []string{"data/catalog/**/*.yaml"}
	}
	if len(cfg.Recipes.Patterns) == 0 {
		cfg.Recipes.Patterns = []string{"data/recipes/**/*.yaml"}
	}
	if len(cfg.Recipes.Vendors) == 0 {
		cfg.Recipes.Vendors = defaultVendorIDs
	}
	if len(cfg.Workshop.Territories) == 0 {
		cfg.Workshop.Territories = defaults.Territories
	}
	if len(cfg.Workshop.Stations) == 0 {
		cfg.Workshop.Stations = defaults.StationIDs
	}
	if cfg.Workshop.InteractionRange <= 0 {
		cfg.Workshop.InteractionRange = defaults.InteractionRange
	}
	if cfg.Workshop.TickInterval <= 0 {
		cfg.Workshop.TickInterval = defaults.TickInterval
	}
	if cfg.Workshop.EventBuffer <= 0 {
		cfg.Workshop.EventBuffer = defaults.EventBuffer
	}
	if cfg.Status.Addr == "" {
		cfg.Status.Addr = ":9090"
	}
}

func controllerConfig(cfg *Config) controller.Config {
	return controller.Config{
		Territories:      cfg.Workshop.Territories,
		StationIDs:       cfg.Workshop.Stations,
		InteractionRange: cfg.Workshop.InteractionRange,
		TickInterval:     cfg.Workshop.TickInterval,
		EventBuffer:      cfg.Workshop.EventBuffer,
	}
}

// ============================================================================
// 共用元件
// ============================================================================

// workspace 一次命令需要的狀態、目錄與任務管理器
type workspace struct {
	cfg     *Config
	store   *snapshot.Manager
	catalog *catalog.Catalog
	jm      *jobmanager.JobManager
}

// openWorkspace 同步載入目錄與狀態檔
func openWorkspace() (*workspace, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}

	crafts, err := catalog.LoadFiles(cfg.Catalog.Patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	cat := catalog.NewWith(crafts)

	store, state, err := openState(cfg)
	if err != nil {
		return nil, err
	}

	return &workspace{
		cfg:     cfg,
		store:   store,
		catalog: cat,
		jm:      jobmanager.NewJobManager(state, cat, saverFor(store, cfg.State.Backups)),
	}, nil
}

func openState(cfg *Config) (*snapshot.Manager, types.State, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755); err != nil {
		return nil, types.State{}, fmt.Errorf("failed to create state directory: %w", err)
	}

	store := snapshot.NewManager(cfg.State.Path)
	state, err := store.Load()
	if err != nil {
		return nil, types.State{}, fmt.Errorf("failed to load state: %w", err)
	}
	return store, state, nil
}

// backupSaver 每次寫入都保留舊版本
type backupSaver struct {
	store *snapshot.Manager
	keep  int
}

func (b backupSaver) Write(state types.State) error {
	return b.store.WriteWithBackup(state, b.keep)
}

func saverFor(store *snapshot.Manager, keep int) jobmanager.Saver {
	if keep > 0 {
		return backupSaver{store: store, keep: keep}
	}
	return store
}

// findCraft 以工坊項目 ID 或名稱（不分大小寫）查詢
func findCraft(cat *catalog.Catalog, arg string) (catalog.Craft, error) {
	if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
		if craft, ok := cat.ByWorkshopItemID(uint32(id)); ok {
			return craft, nil
		}
	}
	if craft, ok := cat.ByName(arg); ok {
		return craft, nil
	}

	matches := cat.Search(arg)
	if len(matches) == 1 {
		return matches[0], nil
	}
	if len(matches) > 1 {
		return catalog.Craft{}, fmt.Errorf("%q matches %d crafts, be more specific", arg, len(matches))
	}
	return catalog.Craft{}, fmt.Errorf("%w: %q", jobmanager.ErrUnknownCraft, arg)
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid queue index %q", arg)
	}
	return index, nil
}

func parsePositive(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", jobmanager.ErrInvalidQuantity, arg)
	}
	return n, nil
}
