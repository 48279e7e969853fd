package catalog

// ============================================================================
// 職責說明：
// 1. 依 glob 模式（支援 **）找出所有目錄資料檔
// 2. 解析 YAML 並驗證每個項目
// 3. 在背景載入，暫時性錯誤以指數退避重試
// ============================================================================

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

var log = slog.Default()

var (
	// ErrNoCatalogFiles 沒有任何檔案符合設定的模式
	ErrNoCatalogFiles = errors.New("catalog: no files matched")
	// ErrInvalidCraft 項目定義不完整
	ErrInvalidCraft = errors.New("catalog: invalid craft definition")
)

// fileFormat 目錄資料檔格式
type fileFormat struct {
	Crafts []Craft `yaml:"crafts"`
}

// LoadFiles 讀取所有符合模式的檔案並合併
func LoadFiles(patterns []string) ([]Craft, error) {
	paths, err := expand(patterns)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint32]string)
	var crafts []Craft
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
		}

		var file fileFormat
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
		}

		for _, craft := range file.Crafts {
			if err := validate(craft); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			if other, dup := seen[craft.WorkshopItemID]; dup {
				return nil, fmt.Errorf("%w: workshop item %d defined in %s and %s",
					ErrInvalidCraft, craft.WorkshopItemID, other, path)
			}
			seen[craft.WorkshopItemID] = path
			crafts = append(crafts, craft)
		}
	}

	return crafts, nil
}

// LoadAsync 在背景載入目錄，完成後替換 cat 的內容
//
// 讀檔失敗會以指數退避重試（檔案可能仍在同步中），
// 解析或驗證失敗則直接放棄。最終失敗時目錄維持空白，只記錄錯誤。
//
// 返回值：
//   - <-chan error: 載入結束時送出結果（nil 表示成功）後關閉
func LoadAsync(ctx context.Context, cat *Catalog, patterns []string) <-chan error {
	done := make(chan error, 1)

	go func() {
		defer close(done)
		start := time.Now()

		var crafts []Craft
		op := func() error {
			loaded, err := LoadFiles(patterns)
			if err != nil {
				if errors.Is(err, ErrNoCatalogFiles) || errors.Is(err, os.ErrNotExist) {
					return err
				}
				return backoff.Permanent(err)
			}
			crafts = loaded
			return nil
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 200 * time.Millisecond
		policy.MaxElapsedTime = 10 * time.Second

		if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
			log.Error("Unable to load workshop catalog", "patterns", patterns, "error", err)
			done <- err
			return
		}

		cat.Replace(crafts)
		log.Info("Workshop catalog loaded",
			"crafts", len(crafts),
			"duration", time.Since(start))
		done <- nil
	}()

	return done
}

func expand(patterns []string) ([]string, error) {
	unique := make(map[string]struct{})
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad catalog pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			unique[m] = struct{}{}
		}
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoCatalogFiles, patterns)
	}

	paths := make([]string, 0, len(unique))
	for p := range unique {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func validate(craft Craft) error {
	if craft.WorkshopItemID == 0 {
		return fmt.Errorf("%w: missing workshop_item_id (%q)", ErrInvalidCraft, craft.Name)
	}
	if craft.Name == "" {
		return fmt.Errorf("%w: craft %d has no name", ErrInvalidCraft, craft.WorkshopItemID)
	}
	if len(craft.Phases) == 0 {
		return fmt.Errorf("%w: craft %d has no phases", ErrInvalidCraft, craft.WorkshopItemID)
	}
	for i, phase := range craft.Phases {
		for _, item := range phase.Items {
			if item.ItemID == 0 || item.SetQuantity <= 0 || item.SetsRequired <= 0 {
				return fmt.Errorf("%w: craft %d phase %d has an invalid item %q",
					ErrInvalidCraft, craft.WorkshopItemID, i, item.Name)
			}
		}
	}
	return nil
}
