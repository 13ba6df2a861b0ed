package acceptor

import (
	"context"
	"net"
	"time"

	network "github.com/lk2023060901/discord-shim-go/internal/network"
	"github.com/lk2023060901/discord-shim-go/internal/network/codec"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/internal/network/session"
)

// Config 描述 Acceptor 在会话层面的配置。
//
// 说明：
//   - MaxFrameSize 为单帧长度上限，为 0 表示不限制；
//   - WriteTimeout 控制单次写帧的超时时间，为 0 表示不设置 deadline；
//   - 读路径不设置超时，静默的对端可以一直占用会话。
type Config struct {
	MaxFrameSize uint32
	WriteTimeout time.Duration

	// Codec 为当前接入层使用的编解码器。
	// 若为 nil，则按 MaxFrameSize 构造默认 Codec。
	Codec codec.Codec
}

// Handler 由使用者实现，用于在连接生命周期的各个阶段插入逻辑。
//
// 所有回调均在该会话自己的协程中被调用；同一会话上的回调严格串行。
type Handler interface {
	// OnConnected 在会话注册到 Manager 之后被调用一次。
	OnConnected(sess *session.Session)

	// OnMessage 在成功解码出一条 Response 后被调用，size 为帧长度。
	//
	// 返回终止性错误（帧错误或解码错误）时连接被关闭；其余错误只经 OnError 上报。
	OnMessage(sess *session.Session, resp *protocol.Response, size int) error

	// OnClosed 在会话从 Manager 移除之后被调用一次。
	//
	// 参数 err 为关闭原因，对端正常关闭时为 nil。
	OnClosed(sess *session.Session, err error)

	// OnError 在会话处理的各个阶段发生错误时被调用。
	OnError(sess *session.Session, stage network.Stage, err error)
}

// Acceptor 抽象了服务器侧的设备接入层。
//
// 职责：
//   - 在 listener 上接受连接，为每个连接创建 Session 并注册到 Manager；
//   - 为每个连接启动一个协程，按到达顺序读取、解码并回调 Handler；
//   - 连接出错或关闭时恰好移除一次 Session。
type Acceptor interface {
	// Serve 启动接入循环，阻塞直至 ctx 取消、Close 被调用或 listener 出现致命错误。
	Serve(ctx context.Context, h Handler) error

	// Close 关闭 listener 以及所有活跃会话。
	Close() error

	// Addr 返回监听地址。
	Addr() net.Addr

	// Sessions 返回会话管理器。
	Sessions() *session.Manager
}
