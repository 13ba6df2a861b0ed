package format

import (
	"regexp"
	"strings"
)

var mentionPattern = regexp.MustCompile(`<@[0-9a-zA-Z]*>`)

// ExtractMentions 收集 title 与 description 中的提及标记。
//
// 先 title 后 description，按出现顺序保留重复项，每个标记后跟一个空格。
// 没有提及时返回空字符串。结果不超过 MaxContentLength，超出部分在标记边界处丢弃。
func ExtractMentions(title, description string) string {
	var sb strings.Builder
	for _, text := range []string{title, description} {
		for _, m := range mentionPattern.FindAllString(text, -1) {
			// 标记只含 ASCII，字节数即字符数。
			if sb.Len()+len(m)+1 > MaxContentLength {
				return sb.String()
			}
			sb.WriteString(m)
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}
