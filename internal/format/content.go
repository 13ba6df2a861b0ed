package format

import (
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
)

// EmbedField 为 embed 中的一个字段。
type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Embed 为一条可直接发送的 embed。
type Embed struct {
	Title       string
	Description string
	Author      string
	Color       int
	Fields      []EmbedField
	// ImageURL 非空时为 "attachment://<filename>"，引用同一条消息中的图片附件。
	ImageURL string
}

// ContentUnit 为一次发送的内容：正文、embed 与可选附件，满足平台单条消息限制。
type ContentUnit struct {
	// Text 为消息正文，包含 embed 中出现的提及标记。
	Text  string
	Embed Embed
	// Image 为 embed 引用的图片附件，仅第一条单元可能携带。
	Image *protocol.File
}

// AttachmentURL 返回引用同一条消息中附件的 URL。
func AttachmentURL(filename string) string {
	return "attachment://" + filename
}

// BuildContentUnits 将设备上报的 Content 转换为一条或多条 ContentUnit。
//
// 规则：
//   - title 与 author 超长时截断；
//   - description 超长时按上限切分，后续部分放入新的单元；
//   - 字段按顺序保留，超长的字段值拆成同名的连续字段；
//   - 单条 embed 的字段数或总字符数超限时，剩余字段放入新的单元；
//   - 正文只含提及标记，长度不超过 MaxContentLength；
//   - snapshot 附加在第一条单元上，并作为 embed 图片引用。
func BuildContentUnits(c *protocol.Content) []ContentUnit {
	if c == nil {
		return nil
	}

	author := truncate(c.Author, MaxAuthorLength)
	newEmbed := func(title, description string) *Embed {
		return &Embed{
			Title:       title,
			Description: description,
			Author:      author,
			Color:       int(c.Color),
		}
	}

	var embeds []*Embed
	descriptions := lo.ChunkString(c.Description, MaxDescriptionLength)
	cur := newEmbed(truncate(c.Title, MaxTitleLength), descriptions[0])
	for _, d := range descriptions[1:] {
		embeds = append(embeds, cur)
		cur = newEmbed("", d)
	}

	for _, f := range splitFields(c.Fields) {
		if len(cur.Fields) >= MaxFieldsPerEmbed || embedLength(cur)+fieldLength(f) > MaxEmbedLength {
			embeds = append(embeds, cur)
			cur = newEmbed("", "")
		}
		cur.Fields = append(cur.Fields, f)
	}
	embeds = append(embeds, cur)

	units := lo.Map(embeds, func(e *Embed, _ int) ContentUnit {
		return ContentUnit{
			Text:  ExtractMentions(e.Title, e.Description),
			Embed: *e,
		}
	})
	if c.Snapshot != nil {
		units[0].Image = c.Snapshot
		units[0].Embed.ImageURL = AttachmentURL(c.Snapshot.Filename)
	}
	return units
}

func splitFields(fields []protocol.TextField) []EmbedField {
	var out []EmbedField
	for _, f := range fields {
		name := truncate(f.Title, MaxFieldNameLength)
		for _, v := range lo.ChunkString(f.Text, MaxFieldValueLength) {
			out = append(out, EmbedField{Name: name, Value: v, Inline: f.Inline})
		}
	}
	return out
}

func embedLength(e *Embed) int {
	n := utf8.RuneCountInString(e.Title) +
		utf8.RuneCountInString(e.Description) +
		utf8.RuneCountInString(e.Author)
	for _, f := range e.Fields {
		n += fieldLength(f)
	}
	return n
}

func fieldLength(f EmbedField) int {
	return utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return lo.Substring(s, 0, uint(limit))
}
