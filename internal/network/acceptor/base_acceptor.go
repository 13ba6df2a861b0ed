package acceptor

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	network "github.com/lk2023060901/discord-shim-go/internal/network"
	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/framer"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// BaseAcceptor 是 Acceptor 接口的 TCP 实现。
type BaseAcceptor struct {
	ln       net.Listener
	cfg      Config
	sessions *session.Manager

	nextID *atomic.Uint64

	closed    *atomic.Bool
	closeOnce sync.Once
}

// 确保 BaseAcceptor 实现了 Acceptor 接口。
var _ Acceptor = (*BaseAcceptor)(nil)

// NewBaseAcceptor 使用已有的 Listener 创建接入器。
//
// 参数：
//   - ln ：已创建好的 net.Listener；
//   - cfg：会话层配置；
//   - sm ：会话管理器，为 nil 时内部创建。
func NewBaseAcceptor(ln net.Listener, cfg Config, sm *session.Manager) (*BaseAcceptor, error) {
	if ln == nil {
		return nil, merr.WrapErrParameterMissing("listener", "acceptor")
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.New(codec.Options{Framer: framer.NewLengthPrefixedFramer(cfg.MaxFrameSize)})
	}
	if sm == nil {
		sm = session.NewManager()
	}
	return &BaseAcceptor{
		ln:       ln,
		cfg:      cfg,
		sessions: sm,
		nextID:   atomic.NewUint64(0),
		closed:   atomic.NewBool(false),
	}, nil
}

// NewTCPAcceptor 在给定地址上监听 TCP，并创建接入器。
func NewTCPAcceptor(addr string, cfg Config, sm *session.Manager) (*BaseAcceptor, error) {
	if addr == "" {
		return nil, merr.WrapErrParameterMissing("addr", "acceptor")
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "acceptor: listen on %s", addr)
	}
	return NewBaseAcceptor(ln, cfg, sm)
}

// Addr 实现 Acceptor.Addr。
func (a *BaseAcceptor) Addr() net.Addr {
	return a.ln.Addr()
}

// Sessions 实现 Acceptor.Sessions。
func (a *BaseAcceptor) Sessions() *session.Manager {
	return a.sessions
}

// Serve 实现 Acceptor.Serve。
//
// ctx 取消或 Close 被调用时返回 nil；Accept 出现非超时错误时关闭接入器并返回该错误。
// 两种情况都在所有连接协程退出后才返回。
func (a *BaseAcceptor) Serve(ctx context.Context, h Handler) error {
	if h == nil {
		return merr.WrapErrParameterMissing("handler", "acceptor")
	}

	stop := context.AfterFunc(ctx, func() { _ = a.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := a.ln.Accept()
		if err != nil {
			if a.closed.Load() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				h.OnError(nil, network.StageAccept, err)
				continue
			}
			// 关闭已建立的会话，否则 wg.Wait 会等待仍在读取的连接。
			_ = a.Close()
			return errors.Wrap(err, "acceptor: accept")
		}

		wg.Add(1)
		go func(conn net.Conn) {
			defer wg.Done()
			a.handleConnection(ctx, conn, h)
		}(conn)
	}
}

// Close 实现 Acceptor.Close。
func (a *BaseAcceptor) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		err = a.ln.Close()
		a.sessions.Range(func(sess *session.Session) bool {
			_ = sess.Close()
			return true
		})
	})
	return err
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 创建 Session 并插入 Manager 头部，随后回调 OnConnected；
//  2. 在当前协程中顺序读取、解码并回调 OnMessage；
//  3. 遇到帧错误、解码错误或对端关闭后关闭连接，从 Manager 移除，并回调 OnClosed。
func (a *BaseAcceptor) handleConnection(ctx context.Context, conn net.Conn, h Handler) {
	id := a.nextID.Inc()
	ctx = log.WithFields(ctx, log.FieldSession(id), log.FieldRemote(conn.RemoteAddr().String()))
	sess := session.New(ctx, id, conn, session.Options{
		Codec:        a.cfg.Codec,
		WriteTimeout: a.cfg.WriteTimeout,
	})

	a.sessions.Register(sess)
	// Close 可能与注册并发发生，此时会话不会被 Close 的遍历覆盖。
	if a.closed.Load() {
		_ = sess.Close()
	}
	h.OnConnected(sess)

	cause := a.readLoop(sess, h)

	// 先关闭再移除：移除完成后，任何并发的发送都会因会话已关闭而失败。
	_ = sess.Close()
	if removed, _ := a.sessions.Unregister(sess); removed {
		h.OnClosed(sess, cause)
	}
}

// readLoop 持续读取并处理消息帧。
//
// 返回值：
//   - nil 表示正常结束（对端关闭或本端关闭会话）；
//   - 非 nil 表示导致连接关闭的帧错误、解码错误或终止性的分发错误。
func (a *BaseAcceptor) readLoop(sess *session.Session, h Handler) error {
	for {
		resp, size, err := sess.Receive()
		if err != nil {
			if sess.Closed() || isCleanClose(err) {
				return nil
			}
			stage := network.StageRecv
			if errors.Is(err, network.ErrDecode) {
				stage = network.StageDecode
			}
			h.OnError(sess, stage, err)
			return err
		}

		if err := h.OnMessage(sess, resp, size); err != nil {
			h.OnError(sess, network.StageDispatch, err)
			if merr.IsTerminal(err) {
				return err
			}
		}
	}
}

// isCleanClose 判断读错误是否为对端在帧边界处正常关闭。
func isCleanClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
