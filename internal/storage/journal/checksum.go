package journal

// ============================================================================
// 校驗和計算
// 職責：計算與驗證日誌記錄的 xxhash64 校驗和
// ============================================================================

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// CalculateChecksum 計算記錄的校驗和
//
// 涵蓋 Checksum 以外的所有欄位，欄位之間以 '|' 分隔避免拼接歧義。
func CalculateChecksum(r Record) uint64 {
	d := xxhash.New()
	buf := make([]byte, 0, 96)
	buf = strconv.AppendUint(buf, r.Seq, 10)
	buf = append(buf, '|')
	buf = append(buf, r.Type...)
	buf = append(buf, '|')
	buf = strconv.AppendUint(buf, uint64(r.WorkshopItemID), 10)
	buf = append(buf, '|')
	buf = strconv.AppendUint(buf, uint64(r.ItemID), 10)
	buf = append(buf, '|')
	buf = strconv.AppendUint(buf, uint64(r.Quantity), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, r.Timestamp, 10)
	buf = append(buf, '|')
	_, _ = d.Write(buf)
	_, _ = d.WriteString(r.Detail)
	return d.Sum64()
}

// VerifyChecksum 驗證記錄的校驗和是否正確
func VerifyChecksum(r Record) bool {
	return r.Checksum == CalculateChecksum(r)
}
