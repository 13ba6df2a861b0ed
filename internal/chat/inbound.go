package chat

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/conc"
)

// StatsCommand 为在控制频道中请求统计报表的命令。
const StatsCommand = "/stats"

// Attachment 为入站消息中的一个附件。
type Attachment struct {
	Filename string
	URL      string
	Size     int
}

// Embed 为入站消息中 embed 的摘要，只保留控制帧检测需要的字段。
type Embed struct {
	Title    string
	HasTitle bool
}

// InboundMessage 为聊天平台推送的一条消息，已转换为与平台无关的形式。
type InboundMessage struct {
	Channel     protocol.ChannelID
	Author      uint64
	Content     string
	Attachments []Attachment
	Embeds      []Embed

	// SelfAuthored 表示消息由本账号发出。
	SelfAuthored bool
	// Private 表示消息来自私信。
	Private bool
}

// DetectControlFrame 识别健康检查回环消息。
//
// 本账号在控制频道发出、恰好带一个 embed 且该 embed 有标题时，返回标题作为标记。
func DetectControlFrame(msg *InboundMessage, controlChannel protocol.ChannelID) (string, bool) {
	if msg == nil || !msg.SelfAuthored || !controlChannel.IsSet() || msg.Channel != controlChannel {
		return "", false
	}
	if len(msg.Embeds) != 1 || !msg.Embeds[0].HasTitle {
		return "", false
	}
	return msg.Embeds[0].Title, true
}

// Router 为入站消息的去向，由中继实现。
type Router interface {
	// SendCommand 将一条命令发往绑定到 channel 的所有设备，返回送达数量。
	SendCommand(ctx context.Context, channel protocol.ChannelID, user uint64, text string) int

	// SendFile 将一个附件发往绑定到 channel 的所有设备，返回送达数量。
	SendFile(ctx context.Context, channel protocol.ChannelID, user uint64, filename string, data []byte) int

	// BroadcastStats 将所有会话的统计报表发送到 channel。
	BroadcastStats(ctx context.Context, channel protocol.ChannelID) error
}

// Fetcher 下载入站附件。
type Fetcher interface {
	Fetch(ctx context.Context, a Attachment) ([]byte, error)
}

// FetcherFunc 将函数适配为 Fetcher。
type FetcherFunc func(ctx context.Context, a Attachment) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, a Attachment) ([]byte, error) {
	return f(ctx, a)
}

// Dispatcher 按规则把入站消息转交给 Router。
//
// 规则：
//   - 控制频道中的 "/stats" 触发统计报表；
//   - 本账号发出的控制帧作为命令转发，其余本账号消息忽略；
//   - 私信忽略；
//   - 其他消息先转发正文命令，再按顺序转发附件。附件并发下载，下载失败的附件被跳过。
type Dispatcher struct {
	router         Router
	fetcher        Fetcher
	controlChannel protocol.ChannelID
	pool           *conc.Pool[[]byte]
}

// NewDispatcher 创建 Dispatcher。pool 为 nil 时附件在当前协程中依次下载。
func NewDispatcher(router Router, fetcher Fetcher, controlChannel protocol.ChannelID, pool *conc.Pool[[]byte]) *Dispatcher {
	return &Dispatcher{
		router:         router,
		fetcher:        fetcher,
		controlChannel: controlChannel,
		pool:           pool,
	}
}

// Handle 处理一条入站消息。
func (d *Dispatcher) Handle(ctx context.Context, msg *InboundMessage) {
	if msg == nil {
		return
	}
	logger := log.Ctx(ctx).With(log.FieldChannel(uint64(msg.Channel)), zap.Uint64("author", msg.Author))

	if msg.Channel == d.controlChannel && msg.Content == StatsCommand {
		if err := d.router.BroadcastStats(ctx, msg.Channel); err != nil {
			logger.Warn("failed to send stats report", zap.Error(err))
		}
	}

	if msg.SelfAuthored {
		if marker, ok := DetectControlFrame(msg, d.controlChannel); ok {
			logger.Debug("forwarding health check marker", zap.String("marker", marker))
			d.router.SendCommand(ctx, msg.Channel, msg.Author, marker)
		}
		return
	}
	if msg.Private {
		return
	}

	d.router.SendCommand(ctx, msg.Channel, msg.Author, msg.Content)
	if len(msg.Attachments) == 0 || d.fetcher == nil {
		return
	}

	for i, data := range d.fetchAll(ctx, msg.Attachments) {
		a := msg.Attachments[i]
		if data.err != nil {
			logger.Warn("failed to download attachment",
				zap.String("filename", a.Filename), zap.String("url", a.URL), zap.Error(data.err))
			continue
		}
		d.router.SendFile(ctx, msg.Channel, msg.Author, a.Filename, data.value)
	}
}

type fetched struct {
	value []byte
	err   error
}

// fetchAll 下载全部附件，结果顺序与 attachments 一致。
func (d *Dispatcher) fetchAll(ctx context.Context, attachments []Attachment) []fetched {
	out := make([]fetched, len(attachments))
	if d.pool == nil {
		for i, a := range attachments {
			out[i].value, out[i].err = d.fetcher.Fetch(ctx, a)
		}
		return out
	}

	futures := make([]*conc.Future[[]byte], len(attachments))
	for i, a := range attachments {
		futures[i] = d.pool.Submit(func() ([]byte, error) {
			return d.fetcher.Fetch(ctx, a)
		})
	}
	for i, f := range futures {
		out[i].value, out[i].err = f.Await()
	}
	return out
}
