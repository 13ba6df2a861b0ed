package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	"github.com/lk2023060901/discord-shim-go/internal/format"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/metrics"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// Dispatch 按负载类型处理一条设备消息。
//
// 投递失败返回 ErrDeliveryFailed，不是终止性错误，连接保持。
func (r *Router) Dispatch(ctx context.Context, sess *session.Session, resp *protocol.Response) error {
	if resp == nil || resp.Payload == nil {
		return nil
	}
	return resp.Payload.Accept(&dispatcher{Router: r, ctx: ctx, sess: sess})
}

// dispatcher 绑定单条消息的上下文，实现 protocol.PayloadVisitor。
type dispatcher struct {
	*Router
	ctx  context.Context
	sess *session.Session
}

var _ protocol.PayloadVisitor = (*dispatcher)(nil)

func (d *dispatcher) VisitSettings(s *protocol.Settings) error {
	d.sess.ApplySettings(s)
	log.Ctx(d.ctx).Debug("Updated session settings",
		log.FieldChannel(uint64(s.ChannelID)),
		zap.String("prefix", s.CommandPrefix),
		zap.Int32("cycleTime", s.CycleTime),
		zap.Bool("presenceEnabled", s.PresenceEnabled))
	return nil
}

func (d *dispatcher) VisitFile(f *protocol.File) error {
	channel, err := d.boundChannel(f.Kind())
	if err != nil {
		return err
	}
	for _, chunk := range format.SplitFile(f.Filename, f.Data, d.attachmentCeiling()) {
		err := d.adapter.SendFile(d.ctx, channel, chunk.Label, f.Filename, chunk.Data)
		metrics.ChatDeliveries.WithLabelValues(f.Kind(), metrics.ResultOf(err)).Inc()
		if err != nil {
			return merr.WrapErrDeliveryFailed(f.Kind(), uint64(channel), err)
		}
	}
	return nil
}

func (d *dispatcher) VisitContent(c *protocol.Content) error {
	channel, err := d.boundChannel(c.Kind())
	if err != nil {
		return err
	}
	if snap := c.Snapshot; snap != nil && len(snap.Data) > d.attachmentCeiling() {
		log.Ctx(d.ctx).Warn("Dropped oversized snapshot",
			zap.String("filename", snap.Filename),
			zap.Int("size", len(snap.Data)),
			zap.Int("ceiling", d.attachmentCeiling()))
		trimmed := *c
		trimmed.Snapshot = nil
		c = &trimmed
	}
	for _, unit := range format.BuildContentUnits(c) {
		err := d.adapter.SendContent(d.ctx, channel, unit)
		metrics.ChatDeliveries.WithLabelValues(c.Kind(), metrics.ResultOf(err)).Inc()
		if err != nil {
			return merr.WrapErrDeliveryFailed(c.Kind(), uint64(channel), err)
		}
	}
	return nil
}

func (d *dispatcher) VisitPresence(p *protocol.Presence) error {
	if d.cfg.CloudServer {
		metrics.ChatDeliveries.WithLabelValues(p.Kind(), metrics.ResultSkipped).Inc()
		return nil
	}
	err := d.adapter.SetPresence(d.ctx, chat.Playing(p.Text))
	metrics.ChatDeliveries.WithLabelValues(p.Kind(), metrics.ResultOf(err)).Inc()
	if err != nil {
		return merr.WrapErrDeliveryFailed(p.Kind(), uint64(d.sess.Channel()), err)
	}
	return nil
}

func (d *dispatcher) attachmentCeiling() int {
	if d.cfg.AttachmentCeiling <= 0 {
		return format.DefaultAttachmentCeiling
	}
	return d.cfg.AttachmentCeiling
}

// boundChannel 返回会话绑定的频道；未绑定时无处投递。
func (d *dispatcher) boundChannel(kind string) (protocol.ChannelID, error) {
	channel := d.sess.Channel()
	if !channel.IsSet() {
		metrics.ChatDeliveries.WithLabelValues(kind, metrics.ResultSkipped).Inc()
		return protocol.Unset, merr.WrapErrDeliveryUnsupported(kind, "session has no channel")
	}
	return channel, nil
}
