package framer

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// HeaderSize 为长度前缀的字节数。
const HeaderSize = 4

// Framer 抽象了长度前缀帧的读写能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节小端无符号整型（表示后续数据长度）+ 数据；
//   - 帧内容不做任何解释，由上层 codec 负责解码。
type Framer interface {
	// WriteFrame 将 payload 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, payload []byte) error

	// ReadFrame 从 r 中读取一帧数据，返回帧内容。
	ReadFrame(r io.Reader) ([]byte, error)
}

// LengthPrefixedFramer 使用 4 字节小端长度前缀作为帧边界。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧长度，单位字节。
	// 为 0 时不做限制。
	MaxFrameSize uint32
}

var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器。
// maxFrameSize 为 0 表示不限制帧长度。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// defaultFramer 不限制帧长度。
var defaultFramer = &LengthPrefixedFramer{}

// ReadFrame 使用不限长度的 framer 读取一帧。
func ReadFrame(r io.Reader) ([]byte, error) {
	return defaultFramer.ReadFrame(r)
}

// WriteFrame 使用不限长度的 framer 写出一帧。
func WriteFrame(w io.Writer, payload []byte) error {
	return defaultFramer.WriteFrame(w, payload)
}

// WriteFrame 将长度前缀与 payload 合并为一次 Write 写出。
//
// 部分写入同样视为失败，调用方应关闭连接。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, payload []byte) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer", "framer: write frame")
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return merr.WrapErrFramingTooLarge(^uint32(0), ^uint32(0))
	}

	length := uint32(len(payload))
	if f.exceeds(length) {
		return merr.WrapErrFramingTooLarge(length, f.MaxFrameSize)
	}

	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf[:HeaderSize], length)
	copy(buf[HeaderSize:], payload)

	n, err := w.Write(buf)
	if err != nil {
		return merr.WrapErrFramingIO("write", err)
	}
	if n != len(buf) {
		return merr.WrapErrFramingIO("write", io.ErrShortWrite)
	}
	return nil
}

// ReadFrame 从流中读取一帧数据。
//
// 错误语义：
//   - 在读取到任何长度前缀字节之前遇到 EOF：返回同时满足 errors.Is(err, io.EOF) 的 ShortRead 错误，表示对端正常关闭；
//   - 长度前缀或消息体未读满：返回 ShortRead 错误（cause 为 io.ErrUnexpectedEOF）；
//   - 其他读取失败：返回 IO 错误。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, merr.WrapErrParameterMissing("reader", "framer: read frame")
	}

	var header [HeaderSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		return nil, readError("header", HeaderSize, n, err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if f.exceeds(length) {
		return nil, merr.WrapErrFramingTooLarge(length, f.MaxFrameSize)
	}
	if length == 0 {
		return []byte{}, nil
	}

	body := make([]byte, length)
	if n, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			// 长度前缀已读到，消息体缺失不是正常关闭。
			err = io.ErrUnexpectedEOF
		}
		return nil, readError("body", int(length), n, err)
	}
	return body, nil
}

func (f *LengthPrefixedFramer) exceeds(length uint32) bool {
	return f != nil && f.MaxFrameSize > 0 && length > f.MaxFrameSize
}

func readError(segment string, want, got int, err error) error {
	if errors.IsAny(err, io.EOF, io.ErrUnexpectedEOF) {
		return merr.WrapErrFramingShortRead(segment, want, got, err)
	}
	return merr.WrapErrFramingIO("read "+segment, err)
}
