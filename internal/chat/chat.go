package chat

import (
	"context"

	"github.com/lk2023060901/discord-shim-go/internal/format"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
)

// ActivityKind 为在线状态的展示方式。
type ActivityKind int

const (
	ActivityPlaying ActivityKind = iota
	ActivityStreaming
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityStreaming:
		return "streaming"
	default:
		return "playing"
	}
}

// PresenceUpdate 为一次全局在线状态更新。
type PresenceUpdate struct {
	Kind ActivityKind
	Text string
	// URL 仅在 ActivityStreaming 时使用。
	URL string
}

// Playing 构造 "正在玩" 类型的在线状态。
func Playing(text string) PresenceUpdate {
	return PresenceUpdate{Kind: ActivityPlaying, Text: text}
}

// Streaming 构造 "直播中" 类型的在线状态。
func Streaming(text, url string) PresenceUpdate {
	return PresenceUpdate{Kind: ActivityStreaming, Text: text, URL: url}
}

// Adapter 为中继使用的聊天平台能力集合。
//
// 所有方法都可能较慢且可能失败；失败由调用方记录，不做重试。
type Adapter interface {
	// SendText 发送一条纯文本消息。
	SendText(ctx context.Context, channel protocol.ChannelID, body string) error

	// SendContent 发送一条 embed 消息，附带 unit 中的图片与附件。
	SendContent(ctx context.Context, channel protocol.ChannelID, unit format.ContentUnit) error

	// SendFile 发送一个附件，label 同时作为消息正文。
	SendFile(ctx context.Context, channel protocol.ChannelID, label string, filename string, data []byte) error

	// SetPresence 更新账号的全局在线状态。
	SetPresence(ctx context.Context, p PresenceUpdate) error
}
