package codec

import (
	"io"

	"github.com/lk2023060901/discord-shim-go/internal/network/framer"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// Codec 抽象了“从协议消息到网络帧，以及从网络帧回到协议消息”的完整编解码流程。
//
// Pipeline（写出）：
//   msg --> protocol.Marshal* --> framer.WriteFrame
//
// Pipeline（读入）：
//   framer.ReadFrame --> protocol.Unmarshal* --> msg
//
// 中继侧读 Response、写 Request；设备侧（健康检查探针、测试）读 Request、写 Response。
type Codec interface {
	// ReadResponse 读取一帧并解码为 Response，同时返回帧长度（不含长度前缀）。
	//
	// 帧错误与解码错误均为终止性错误，调用方应关闭连接。
	ReadResponse(r io.Reader) (*protocol.Response, int, error)

	// WriteRequest 将 Request 编码并写出一帧。
	WriteRequest(w io.Writer, req *protocol.Request) error

	// ReadRequest 读取一帧并解码为 Request。
	ReadRequest(r io.Reader) (*protocol.Request, error)

	// WriteResponse 将 Response 编码并写出一帧。
	WriteResponse(w io.Writer, resp *protocol.Response) error
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	// Framer 允许为 nil（内部使用不限长度的 LengthPrefixedFramer）。
	Framer framer.Framer
}

type codec struct {
	framer framer.Framer
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) Codec {
	c := &codec{framer: opts.Framer}
	if c.framer == nil {
		c.framer = framer.NewLengthPrefixedFramer(0)
	}
	return c
}

// Default 返回使用默认 framer 的 Codec。
func Default() Codec {
	return New(Options{})
}

// ReadResponse 实现 Codec.ReadResponse。
func (c *codec) ReadResponse(r io.Reader) (*protocol.Response, int, error) {
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, 0, err
	}
	resp, err := protocol.UnmarshalResponse(frame)
	if err != nil {
		return nil, len(frame), err
	}
	return resp, len(frame), nil
}

// WriteRequest 实现 Codec.WriteRequest。
func (c *codec) WriteRequest(w io.Writer, req *protocol.Request) error {
	if req == nil {
		return merr.WrapErrParameterMissing("request", "codec: write request")
	}
	return c.framer.WriteFrame(w, protocol.MarshalRequest(req))
}

// ReadRequest 实现 Codec.ReadRequest。
func (c *codec) ReadRequest(r io.Reader) (*protocol.Request, error) {
	frame, err := c.framer.ReadFrame(r)
	if err != nil {
		return nil, err
	}
	return protocol.UnmarshalRequest(frame)
}

// WriteResponse 实现 Codec.WriteResponse。
func (c *codec) WriteResponse(w io.Writer, resp *protocol.Response) error {
	if resp == nil {
		return merr.WrapErrParameterMissing("response", "codec: write response")
	}
	return c.framer.WriteFrame(w, protocol.MarshalResponse(resp))
}
