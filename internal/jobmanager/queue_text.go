package jobmanager

// ============================================================================
// 佇列文字匯入／匯出，每行格式為 "<數量>x <名稱>"
// ============================================================================

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ChuLiYu/workshop-queue/internal/catalog"
	"github.com/ChuLiYu/workshop-queue/pkg/types"
)

var countAndName = regexp.MustCompile(`^(\d{1,5})x?\s+(.*)$`)

// UnknownLine 名稱對不上目錄的一行
type UnknownLine struct {
	Line       int    // 從 1 開始
	Name       string
	Suggestion string // 最接近的項目名稱，沒有合適的時為空
}

func (u UnknownLine) String() string {
	if u.Suggestion == "" {
		return fmt.Sprintf("line %d: unknown craft %q", u.Line, u.Name)
	}
	return fmt.Sprintf("line %d: unknown craft %q (did you mean %q?)", u.Line, u.Name, u.Suggestion)
}

// ParseQueueText 解析佇列文字
//
// 格式不符的行直接略過；名稱不分大小寫比對目錄，
// 找不到的名稱回報在 unknown 中並附上最接近的名稱。
func ParseQueueText(text string, cat *catalog.Catalog) (items []types.QueuedItem, unknown []UnknownLine) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	for i, line := range strings.Split(text, "\n") {
		match := countAndName.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		quantity, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		name := strings.TrimSpace(match[2])

		craft, ok := cat.ByName(name)
		if !ok {
			unknown = append(unknown, UnknownLine{Line: i + 1, Name: name, Suggestion: suggest(name, cat)})
			continue
		}
		items = append(items, types.QueuedItem{WorkshopItemID: craft.WorkshopItemID, Quantity: quantity})
	}
	return items, unknown
}

// suggest 以編輯距離找出最接近的名稱，差距太大時不建議
func suggest(name string, cat *catalog.Catalog) string {
	needle := strings.ToLower(name)
	best, bestDistance := "", -1
	for _, craft := range cat.Crafts() {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(craft.Name))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = craft.Name, d
		}
	}

	limit := max(3, len(needle)/3)
	if bestDistance < 0 || bestDistance > limit {
		return ""
	}
	return best
}

// FormatQueueText 把佇列輸出成可再匯入的文字
func FormatQueueText(queue []types.QueuedItem, cat *catalog.Catalog) string {
	lines := make([]string, 0, len(queue))
	for _, item := range queue {
		lines = append(lines, fmt.Sprintf("%dx %s", item.Quantity, cat.Name(item.WorkshopItemID)))
	}
	return strings.Join(lines, "\n")
}

// FormatMaterials 把材料清單輸出成相同格式的文字
func FormatMaterials(items []types.Ingredient) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, fmt.Sprintf("%dx %s", item.TotalQuantity, item.Name))
	}
	return strings.Join(lines, "\n")
}
