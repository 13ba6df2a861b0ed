package stats

import (
	"bytes"
	"encoding/csv"
	"strconv"
)

// Filename 为统计报表作为附件发送时的文件名。
const Filename = "stats.csv"

var header = []string{"ip", "num_messages", "total_data"}

// Row 为单个会话的统计数据。
type Row struct {
	Addr     string `json:"ip"`
	Messages uint64 `json:"num_messages"`
	Bytes    uint64 `json:"total_data"`
}

// Format 将统计数据序列化为 CSV：表头加每个会话一行，顺序与 rows 一致。
func Format(rows []Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// bytes.Buffer 的写入不会失败，Write 的错误只会来自底层 writer。
	_ = w.Write(header)
	for _, r := range rows {
		_ = w.Write([]string{
			r.Addr,
			strconv.FormatUint(r.Messages, 10),
			strconv.FormatUint(r.Bytes, 10),
		})
	}
	w.Flush()
	return buf.Bytes()
}
