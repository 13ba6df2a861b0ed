package log

import "go.uber.org/atomic"

var (
	_ WithLogger   = &Binder{}
	_ LoggerBinder = &Binder{}
)

// WithLogger 用于访问组件本地 Logger。
type WithLogger interface {
	Logger() *MLogger
}

// LoggerBinder 用于为组件设置 Logger。
type LoggerBinder interface {
	SetLogger(logger *MLogger)
}

// Binder 嵌入到组件中，统一管理组件的 Logger。
type Binder struct {
	logger atomic.Pointer[MLogger]
}

// SetLogger 绑定 Logger。
func (w *Binder) SetLogger(logger *MLogger) {
	w.logger.Store(logger)
}

// Logger 返回绑定的 Logger，未绑定时退回到全局 Logger。
func (w *Binder) Logger() *MLogger {
	if l := w.logger.Load(); l != nil {
		return l
	}
	return With()
}

// BindComponent 绑定一个带 component 字段的全局 Logger，并返回该 Logger。
func (w *Binder) BindComponent(component string) *MLogger {
	l := With(FieldComponent(component))
	w.logger.Store(l)
	return l
}
