package format

import (
	"fmt"

	"github.com/samber/lo"
)

// FileChunk 为拆分后的一个附件分片。
type FileChunk struct {
	Label string
	Data  []byte
}

// SplitFile 将文件按 ceiling 字节拆分为若干分片。
//
// 分片数为 ceil(len(data)/ceiling)，空文件或不超过上限的文件得到一个分片且名称不变；
// 多个分片时名称为 "name (part N/M)"。
// ceiling <= 0 时使用 DefaultAttachmentCeiling。
func SplitFile(name string, data []byte, ceiling int) []FileChunk {
	if ceiling <= 0 {
		ceiling = DefaultAttachmentCeiling
	}
	if len(data) <= ceiling {
		return []FileChunk{{Label: name, Data: data}}
	}

	parts := lo.Chunk(data, ceiling)
	return lo.Map(parts, func(part []byte, i int) FileChunk {
		return FileChunk{
			Label: fmt.Sprintf("%s (part %d/%d)", name, i+1, len(parts)),
			Data:  part,
		}
	})
}
