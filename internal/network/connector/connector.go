package connector

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
	"github.com/lk2023060901/discord-shim-go/pkg/util/retry"
)

// Config 描述设备侧连接的基础配置。
type Config struct {
	SendQueueSize int
	RecvQueueSize int

	WriteTimeout time.Duration

	// DialAttempts 为拨号的最大尝试次数，0 表示直到 ctx 结束。
	DialAttempts uint
	// DialBackoff 为首次重试前的等待时间，之后指数增长。
	DialBackoff time.Duration
	// DialMaxBackoff 为两次重试之间的最大等待时间。
	DialMaxBackoff time.Duration

	// Codec 为当前连接使用的编解码器，nil 表示 codec.Default()。
	Codec codec.Codec
}

func defaultConfig() Config {
	return Config{
		SendQueueSize:  64,
		RecvQueueSize:  64,
		DialBackoff:    100 * time.Millisecond,
		DialMaxBackoff: 2 * time.Second,
	}
}

// DialFunc 建立底层连接。
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Connector 以设备身份连接中继：发送 Response，接收 Request。
type Connector struct {
	cfg  Config
	dial DialFunc
}

// Option 配置 Connector。
type Option func(*Connector)

// WithDialer 替换拨号函数。
func WithDialer(dial DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

// New 创建 Connector，未设置的配置项使用默认值。
func New(cfg Config, opts ...Option) *Connector {
	def := defaultConfig()
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RecvQueueSize <= 0 {
		cfg.RecvQueueSize = def.RecvQueueSize
	}
	if cfg.DialBackoff <= 0 {
		cfg.DialBackoff = def.DialBackoff
	}
	if cfg.DialMaxBackoff <= 0 {
		cfg.DialMaxBackoff = def.DialMaxBackoff
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.Default()
	}

	var d net.Dialer
	c := &Connector{cfg: cfg, dial: d.DialContext}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dial 连接 address，失败时按指数退避重试。
//
// 返回的 Conn 生命周期与 ctx 绑定，ctx 结束时连接关闭。
func (c *Connector) Dial(ctx context.Context, address string) (*Conn, error) {
	var raw net.Conn
	err := retry.Do(ctx, func() error {
		conn, err := c.dial(ctx, "tcp", address)
		if err != nil {
			log.Ctx(ctx).Debug("dial relay failed", zap.String("address", address), zap.Error(err))
			return err
		}
		raw = conn
		return nil
	}, retry.Attempts(c.cfg.DialAttempts), retry.Sleep(c.cfg.DialBackoff), retry.MaxSleepTime(c.cfg.DialMaxBackoff))
	if err != nil {
		return nil, errors.Wrapf(err, "connector: dial %s", address)
	}
	return newConn(ctx, raw, c.cfg), nil
}

// Conn 为设备侧的一条连接。
//
// 写入经由发送队列串行化；读取到的 Request 投递到 Recv 通道，连接结束时通道关闭。
type Conn struct {
	conn net.Conn
	cfg  Config

	ctx    context.Context
	cancel context.CancelFunc

	sendChan chan *protocol.Response
	recvChan chan *protocol.Request

	err       *atomic.Error
	closeOnce sync.Once
	done      chan struct{}
}

func newConn(parent context.Context, raw net.Conn, cfg Config) *Conn {
	ctx, cancel := context.WithCancel(parent)
	c := &Conn{
		conn:     raw,
		cfg:      cfg,
		ctx:      ctx,
		cancel:   cancel,
		sendChan: make(chan *protocol.Response, cfg.SendQueueSize),
		recvChan: make(chan *protocol.Request, cfg.RecvQueueSize),
		err:      atomic.NewError(nil),
		done:     make(chan struct{}),
	}
	context.AfterFunc(ctx, func() { c.close(nil) })

	go c.recvLoop()
	go c.sendLoop()
	return c
}

func (c *Conn) Context() context.Context { return c.ctx }
func (c *Conn) RemoteAddr() net.Addr     { return c.conn.RemoteAddr() }
func (c *Conn) LocalAddr() net.Addr      { return c.conn.LocalAddr() }

// Recv 返回收到的 Request，连接结束后通道关闭。
func (c *Conn) Recv() <-chan *protocol.Request {
	return c.recvChan
}

// Done 在连接关闭后关闭。
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err 返回导致连接关闭的错误，主动关闭或对端正常断开时为 nil。
func (c *Conn) Err() error {
	return c.err.Load()
}

// Send 将 resp 放入发送队列，队列满时阻塞直到有空位或连接关闭。
func (c *Conn) Send(resp *protocol.Response) error {
	if resp == nil {
		return merr.WrapErrParameterMissing("resp")
	}
	if c.ctx.Err() != nil {
		return merr.WrapErrSessionClosed(0, "connector")
	}
	select {
	case <-c.ctx.Done():
		return merr.WrapErrSessionClosed(0, "connector")
	case c.sendChan <- resp:
		return nil
	}
}

// Close 关闭连接。
func (c *Conn) Close() error {
	c.close(nil)
	return nil
}

func (c *Conn) close(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil {
			c.err.Store(cause)
		}
		c.cancel()
		_ = c.conn.Close()
		close(c.done)
	})
}

// recvLoop 持续读取帧并解码为 Request。
func (c *Conn) recvLoop() {
	defer close(c.recvChan)

	for {
		req, err := c.cfg.Codec.ReadRequest(c.conn)
		if err != nil {
			if c.ctx.Err() == nil && !isCleanClose(err) {
				log.Ctx(c.ctx).Debug("relay connection read failed", zap.Error(err))
				c.close(err)
			}
			c.close(nil)
			return
		}

		select {
		case <-c.ctx.Done():
			return
		case c.recvChan <- req:
		}
	}
}

func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// sendLoop 从发送队列取出 Response 编码后写入连接。
func (c *Conn) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case resp := <-c.sendChan:
			if c.cfg.WriteTimeout > 0 {
				if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
					c.close(merr.WrapErrFramingIO("set write deadline", err))
					return
				}
			}
			if err := c.cfg.Codec.WriteResponse(c.conn, resp); err != nil {
				c.close(err)
				return
			}
		}
	}
}
