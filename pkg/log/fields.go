package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameSession   = "sessionID"
	FieldNameRemote    = "remote"
	FieldNameChannel   = "channelID"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldSession 返回会话 ID 字段。
func FieldSession(id uint64) zap.Field {
	return zap.Uint64(FieldNameSession, id)
}

// FieldRemote 返回对端地址字段。
func FieldRemote(addr string) zap.Field {
	return zap.String(FieldNameRemote, addr)
}

// FieldChannel 返回聊天频道 ID 字段。
func FieldChannel(id uint64) zap.Field {
	return zap.Uint64(FieldNameChannel, id)
}
