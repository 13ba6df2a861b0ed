package relay

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	network "github.com/lk2023060901/discord-shim-go/internal/network"
	"github.com/lk2023060901/discord-shim-go/internal/network/acceptor"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
	"github.com/lk2023060901/discord-shim-go/internal/presence"
	"github.com/lk2023060901/discord-shim-go/internal/stats"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/metrics"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

const (
	frameWarnPerSecond = 1.0
	frameWarnBurst     = 60.0
)

// Config 为中继的行为配置。
type Config struct {
	// CloudServer 为 true 时，在线状态用于展示实例数量，设备上报的 Presence 被忽略。
	CloudServer bool
	// AttachmentCeiling 为单个附件的字节上限，<= 0 时使用平台默认值。
	AttachmentCeiling int
}

// Router 连接设备会话与聊天平台。
//
// 出站方向（设备 -> 聊天平台）由接入层回调 OnMessage 驱动；
// 入站方向（聊天平台 -> 设备）按频道把 Request 广播给绑定该频道的所有会话。
type Router struct {
	log.Binder

	cfg      Config
	sessions *session.Manager
	adapter  chat.Adapter
	throttle *presence.Throttle
}

var (
	_ acceptor.Handler = (*Router)(nil)
	_ chat.Router      = (*Router)(nil)
)

// Option 配置 Router。
type Option func(*Router)

// WithThrottle 替换在线状态节流器。
func WithThrottle(t *presence.Throttle) Option {
	return func(r *Router) {
		r.throttle = t
	}
}

// NewRouter 创建 Router。sessions 应与接入层共用同一个 Manager。
func NewRouter(cfg Config, sessions *session.Manager, adapter chat.Adapter, opts ...Option) *Router {
	r := &Router{
		cfg:      cfg,
		sessions: sessions,
		adapter:  adapter,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.throttle == nil {
		r.throttle = presence.NewThrottle(adapter)
	}
	r.BindComponent("relay")
	return r
}

// Sessions 返回会话管理器。
func (r *Router) Sessions() *session.Manager {
	return r.sessions
}

// OnConnected 实现 acceptor.Handler。
func (r *Router) OnConnected(sess *session.Session) {
	count := r.sessions.Count()
	metrics.ConnectedSessions.Set(float64(count))
	log.Ctx(sess.Context()).Info("Received connection", zap.Int("sessions", count))

	if r.cfg.CloudServer {
		r.throttle.MaybeUpdate(sess.Context(), count)
	}
}

// OnMessage 实现 acceptor.Handler。
func (r *Router) OnMessage(sess *session.Session, resp *protocol.Response, size int) error {
	sess.RecordFrame(size)
	metrics.FramesReceived.Inc()
	metrics.FrameSize.Observe(float64(size))

	if resp == nil || resp.Payload == nil {
		log.Ctx(sess.Context()).Debug("Received response without payload", zap.Int("size", size))
		return nil
	}
	return r.Dispatch(sess.Context(), sess, resp)
}

// OnClosed 实现 acceptor.Handler。
func (r *Router) OnClosed(sess *session.Session, err error) {
	count := r.sessions.Count()
	metrics.ConnectedSessions.Set(float64(count))

	// 会话的 Context 此时已取消，后续调用不应随之失败。
	ctx := context.WithoutCancel(sess.Context())
	logger := log.Ctx(ctx).With(
		zap.Int("sessions", count),
		zap.Uint64("messages", sess.Messages()),
		zap.Uint64("bytes", sess.Bytes()))
	if err != nil {
		logger.Info("Dropped connection", zap.Error(err))
	} else {
		logger.Info("Dropped connection")
	}

	if r.cfg.CloudServer {
		r.throttle.MaybeUpdate(ctx, count)
	}
}

// OnError 实现 acceptor.Handler。
func (r *Router) OnError(sess *session.Session, stage network.Stage, err error) {
	logger := r.Logger().Logger
	if sess != nil {
		logger = log.Ctx(sess.Context()).Logger
	}
	if merr.IsTerminal(err) {
		metrics.ConnectionErrors.WithLabelValues(string(stage)).Inc()
		logger.Debug("connection failed", zap.String("stage", string(stage)), zap.Int32("code", merr.Code(err)), zap.Error(err))
		return
	}
	// 设备持续发送无法投递的消息时限制日志量。
	(&log.MLogger{Logger: logger}).
		WithRateGroup("relay.frame", frameWarnPerSecond, frameWarnBurst).
		RatedWarn(1, "failed to handle frame", zap.String("stage", string(stage)), zap.Int32("code", merr.Code(err)), zap.Error(err))
}

// RouteOutbound 将 req 写给所有绑定到 channel 的会话，返回成功写入的数量。
//
// 未设置的频道不匹配任何会话。单个会话写入失败只记录日志，不影响其余会话；
// 帧写入失败的会话随即被关闭，由其读协程完成移除。
func (r *Router) RouteOutbound(ctx context.Context, channel protocol.ChannelID, req *protocol.Request) int {
	kind := "unknown"
	if req != nil && req.Message != nil {
		kind = req.Message.Kind()
	}
	logger := log.Ctx(ctx).With(log.FieldChannel(uint64(channel)), zap.String("kind", kind))

	found := 0
	for _, sess := range r.sessions.ByChannel(channel) {
		if err := sess.Send(req); err != nil {
			metrics.OutboundRoutes.WithLabelValues(kind, metrics.ResultFail).Inc()
			logger.Warn("Failed to send message", log.FieldSession(sess.ID()), log.FieldRemote(sess.RemoteAddr()), zap.Error(err))
			if merr.IsTerminal(err) {
				_ = sess.Close()
			}
			continue
		}
		metrics.OutboundRoutes.WithLabelValues(kind, metrics.ResultSuccess).Inc()
		found++
	}
	logger.Info("Sent message to clients", zap.Int("clients", found))
	return found
}

// SendCommand 实现 chat.Router。
func (r *Router) SendCommand(ctx context.Context, channel protocol.ChannelID, user uint64, text string) int {
	return r.RouteOutbound(ctx, channel, protocol.NewCommandRequest(user, text))
}

// SendFile 实现 chat.Router。
func (r *Router) SendFile(ctx context.Context, channel protocol.ChannelID, user uint64, filename string, data []byte) int {
	return r.RouteOutbound(ctx, channel, protocol.NewFileRequest(user, filename, data))
}

// Rows 返回所有会话的统计数据快照，顺序与会话集合一致。
func (r *Router) Rows() []stats.Row {
	return lo.Map(r.sessions.Snapshot(), func(sess *session.Session, _ int) stats.Row {
		return stats.Row{
			Addr:     sess.RemoteAddr(),
			Messages: sess.Messages(),
			Bytes:    sess.Bytes(),
		}
	})
}

// BroadcastStats 实现 chat.Router：将统计报表作为 CSV 附件发送到 channel。
func (r *Router) BroadcastStats(ctx context.Context, channel protocol.ChannelID) error {
	report := stats.Format(r.Rows())
	err := r.adapter.SendFile(ctx, channel, "", stats.Filename, report)
	metrics.ChatDeliveries.WithLabelValues("stats", metrics.ResultOf(err)).Inc()
	if err != nil {
		return merr.WrapErrDeliveryFailed("stats", uint64(channel), err)
	}
	return nil
}
