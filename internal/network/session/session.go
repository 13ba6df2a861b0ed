package session

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// Session 表示一条设备连接在中继侧的全部状态。
//
// 同步约定：
//   - 连接的写路径由 writeMu 串行化，读路径只由接入层的单个协程访问；
//   - channel 与计数器使用原子变量，路由与统计可以在不加锁的情况下并发读取；
//   - prefix/cycleTime/presenceEnabled 由 settingsMu 保护，与注册表的成员锁相互独立。
type Session struct {
	id uint64

	ctx    context.Context
	cancel context.CancelFunc

	conn  net.Conn
	codec codec.Codec

	remoteAddr  string
	connectedAt time.Time

	// writeTimeout 为 0 时不设置写超时。
	writeTimeout time.Duration
	writeMu      sync.Mutex

	channel *atomic.Uint64

	settingsMu      sync.RWMutex
	commandPrefix   string
	cycleTime       int32
	presenceEnabled bool

	messages *atomic.Uint64
	bytes    *atomic.Uint64

	closed    *atomic.Bool
	closeOnce sync.Once
}

// Options 为创建 Session 时的可选参数。
type Options struct {
	Codec        codec.Codec
	WriteTimeout time.Duration
}

// New 基于 net.Conn 创建一个频道未绑定的 Session。
//
// parent 为 nil 时使用 context.Background()。会话关闭时其 Context 随之取消。
func New(parent context.Context, id uint64, conn net.Conn, opts Options) *Session {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	c := opts.Codec
	if c == nil {
		c = codec.Default()
	}

	s := &Session{
		id:           id,
		ctx:          ctx,
		cancel:       cancel,
		conn:         conn,
		codec:        c,
		connectedAt:  time.Now(),
		writeTimeout: opts.WriteTimeout,
		channel:      atomic.NewUint64(uint64(protocol.Unset)),
		messages:     atomic.NewUint64(0),
		bytes:        atomic.NewUint64(0),
		closed:       atomic.NewBool(false),
	}
	if conn != nil && conn.RemoteAddr() != nil {
		s.remoteAddr = conn.RemoteAddr().String()
	}
	return s
}

// ID 返回会话 ID。
func (s *Session) ID() uint64 {
	return s.id
}

// Context 返回与会话绑定的上下文。
func (s *Session) Context() context.Context {
	return s.ctx
}

// Conn 返回底层连接，仅供接入层的读协程使用。
func (s *Session) Conn() net.Conn {
	return s.conn
}

// Codec 返回会话使用的编解码器。
func (s *Session) Codec() codec.Codec {
	return s.codec
}

// RemoteAddr 返回对端地址字符串，形如 "ip:port"。
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// ConnectedAt 返回连接建立时间。
func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

// Channel 返回当前绑定的频道。
func (s *Session) Channel() protocol.ChannelID {
	return protocol.ChannelID(s.channel.Load())
}

// Matches 报告会话是否应接收发往 channel 的消息。未绑定频道永不匹配。
func (s *Session) Matches(channel protocol.ChannelID) bool {
	return channel.IsSet() && s.Channel() == channel && !s.closed.Load()
}

// ApplySettings 用设备上报的 Settings 覆盖会话配置。
func (s *Session) ApplySettings(settings *protocol.Settings) {
	if settings == nil {
		return
	}
	s.settingsMu.Lock()
	s.commandPrefix = settings.CommandPrefix
	s.cycleTime = settings.CycleTime
	s.presenceEnabled = settings.PresenceEnabled
	s.settingsMu.Unlock()

	s.channel.Store(uint64(settings.ChannelID))
}

// Settings 返回当前会话配置的副本。
func (s *Session) Settings() protocol.Settings {
	s.settingsMu.RLock()
	defer s.settingsMu.RUnlock()
	return protocol.Settings{
		ChannelID:       s.Channel(),
		CommandPrefix:   s.commandPrefix,
		CycleTime:       s.cycleTime,
		PresenceEnabled: s.presenceEnabled,
	}
}

// RecordFrame 记录一帧入站消息，size 为帧长度（不含长度前缀）。
func (s *Session) RecordFrame(size int) {
	s.messages.Inc()
	if size > 0 {
		s.bytes.Add(uint64(size))
	}
}

// Messages 返回已处理的入站帧数量。
func (s *Session) Messages() uint64 {
	return s.messages.Load()
}

// Bytes 返回已处理的入站字节总数。
func (s *Session) Bytes() uint64 {
	return s.bytes.Load()
}

// Send 将 Request 编码为一帧写入连接。
//
// 多个协程可以并发调用 Send，帧之间不会交叉。会话关闭后返回 ErrSessionClosed。
func (s *Session) Send(req *protocol.Request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed.Load() {
		return merr.WrapErrSessionClosed(s.id)
	}

	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return merr.WrapErrFramingIO("set write deadline", err)
		}
		defer s.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}
	return s.codec.WriteRequest(s.conn, req)
}

// Receive 从连接读取下一帧 Response，返回帧长度。
func (s *Session) Receive() (*protocol.Response, int, error) {
	return s.codec.ReadResponse(s.conn)
}

// Closed 报告会话是否已关闭。
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Close 关闭会话：取消 Context 并关闭底层连接。多次调用是幂等的。
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.cancel()
		if s.conn != nil {
			err = s.conn.Close()
		}
	})
	return err
}
