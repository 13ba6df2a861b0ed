package network

import (
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
)

// Stage 表示网络收发链路中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept   Stage = "accept"   // 接受新连接
	StageRecv     Stage = "recv"     // 读取长度前缀帧
	StageDecode   Stage = "decode"   // 帧 -> Response
	StageDispatch Stage = "dispatch" // Response -> 聊天平台
	StageSend     Stage = "send"     // Request -> 设备连接
)

// 以下错误用于 errors.Is 判断，真正的错误码定义在 merr 中。
var (
	// ErrShortRead 表示长度前缀或消息体未读满，连接随之关闭。
	ErrShortRead = merr.ErrFramingShortRead

	// ErrIO 表示底层读写失败，连接随之关闭。
	ErrIO = merr.ErrFramingIO

	// ErrFrameTooLarge 表示帧长度超过配置的上限。
	ErrFrameTooLarge = merr.ErrFramingTooLarge

	// ErrDecode 表示帧内容无法解码为协议消息，连接随之关闭。
	ErrDecode = merr.ErrDecodeMalformed

	// ErrDelivery 表示聊天平台投递失败，仅记录日志，不关闭连接。
	ErrDelivery = merr.ErrDeliveryFailed

	// ErrSessionClosed 表示会话已关闭。
	ErrSessionClosed = merr.ErrSessionClosed
)
