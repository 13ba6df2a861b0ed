package format

// Discord 对单条消息的限制，长度按字符（rune）计算。
const (
	DefaultAttachmentCeiling = 8 * 1024 * 1024

	MaxContentLength     = 2000
	MaxTitleLength       = 256
	MaxDescriptionLength = 4096
	MaxAuthorLength      = 256
	MaxFieldNameLength   = 256
	MaxFieldValueLength  = 1024
	MaxFieldsPerEmbed    = 25
	MaxEmbedLength       = 6000
)
