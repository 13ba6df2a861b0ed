package healthcheck

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/network/connector"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

const (
	DefaultAddress = "127.0.0.1:23416"
	DefaultTimeout = 30 * time.Second
)

// Config 为健康检查探针的配置。
type Config struct {
	// Address 为中继的设备端口地址。
	Address string
	// Channel 为控制频道，探针以设备身份绑定到该频道。
	Channel protocol.ChannelID
	// Timeout 为整次检查（含连接重试）的时限。
	Timeout time.Duration
}

// Probe 以设备身份走一遍完整链路：
// 设备 -> 中继 -> 聊天平台 -> 中继（回环）-> 设备。
//
// 探针发送一条标题为随机标记的 Content，中继把它发到控制频道；
// 平台把本账号的这条消息推送回中继，中继识别为控制帧后把标记作为命令发回控制频道上的设备，
// 也就是探针自己。在时限内收到该命令即为健康。
type Probe struct {
	cfg       Config
	connector *connector.Connector
	newMarker func() string
}

// Option 配置 Probe。
type Option func(*Probe)

// WithDialer 替换拨号函数。
func WithDialer(dial connector.DialFunc) Option {
	return func(p *Probe) {
		p.connector = connector.New(connector.Config{}, connector.WithDialer(dial))
	}
}

// WithMarker 替换标记生成函数。
func WithMarker(fn func() string) Option {
	return func(p *Probe) {
		p.newMarker = fn
	}
}

// NewProbe 创建探针。
func NewProbe(cfg Config, opts ...Option) (*Probe, error) {
	if !cfg.Channel.IsSet() {
		return nil, merr.WrapErrConfigMissing("discord.health-check-channel-id")
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Probe{
		cfg:       cfg,
		connector: connector.New(connector.Config{}),
		newMarker: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run 执行一次健康检查，成功返回 nil；中继不可达或未在时限内回送标记时返回 ErrHealthCheckTimeout。
func (p *Probe) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	marker := p.newMarker()
	ctx = log.WithFields(ctx, zap.String("address", p.cfg.Address), zap.String("marker", marker))

	conn, err := p.connector.Dial(ctx, p.cfg.Address)
	if err != nil {
		return merr.Combine(err, merr.WrapErrHealthCheckTimeout(marker, "dial"))
	}
	defer conn.Close()

	hello := []*protocol.Response{
		{Payload: &protocol.Settings{ChannelID: p.cfg.Channel}},
		{Payload: &protocol.Content{Title: marker}},
	}
	for _, resp := range hello {
		if err := conn.Send(resp); err != nil {
			return p.failure(ctx, conn, marker)
		}
	}
	log.Ctx(ctx).Debug("health check marker sent")

	for req := range conn.Recv() {
		if cmd, ok := req.Message.(*protocol.Command); ok && cmd.Text == marker {
			log.Ctx(ctx).Info("health check passed")
			return nil
		}
	}
	return p.failure(ctx, conn, marker)
}

// failure 区分超时导致的连接关闭与连接本身的错误。
func (p *Probe) failure(ctx context.Context, conn *connector.Conn, marker string) error {
	if ctx.Err() != nil {
		return merr.WrapErrHealthCheckTimeout(marker)
	}
	if err := conn.Err(); err != nil {
		return errors.Wrap(err, "healthcheck: relay connection")
	}
	return errors.New("healthcheck: relay closed the connection")
}
