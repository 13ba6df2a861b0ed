package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "info", Format: FormatJSON})
	require.NoError(t, err)
	require.NotNil(t, props)

	assert.False(t, lg.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, lg.Core().Enabled(zapcore.InfoLevel))
	lg.Info("test logger ready", zap.Int("sessions", 0))
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	_, _, err := InitLogger(&Config{Level: "verbose"})
	assert.Error(t, err)
}

func TestInitLoggerTraceLevel(t *testing.T) {
	_, props, err := InitLogger(&Config{Level: "trace"})
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, props.Level.Level())
}

func TestCtxCarriesFields(t *testing.T) {
	ctx := WithFields(context.Background(), FieldSession(7))
	l := Ctx(ctx)
	assert.Same(t, l, Ctx(ctx))

	// 不带 Logger 的 ctx 返回新的 Logger。
	assert.NotNil(t, Ctx(context.Background()))
	assert.NotNil(t, Ctx(nil)) //nolint:staticcheck
}

func TestCreditLimiter(t *testing.T) {
	rl := NewRateLimiter(0.0001, 2)
	assert.True(t, rl.CheckCredit(1))
	assert.True(t, rl.CheckCredit(1))
	assert.False(t, rl.CheckCredit(1))

	rl.Update(0.0001, 5)
	assert.False(t, rl.CheckCredit(10))
}

func TestRateGroupShared(t *testing.T) {
	a := With().WithRateGroup("test.shared", 0.0001, 1)
	b := With().WithRateGroup("test.shared", 0.0001, 1)

	assert.True(t, a.RatedInfo(1, "first"))
	assert.False(t, b.RatedInfo(1, "second"))
}

func TestGlobalRateLimiterDefaultsToNop(t *testing.T) {
	SetRateLimiter(nil)
	for i := 0; i < 100; i++ {
		assert.True(t, RatedWarn(1, "never dropped"))
	}
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	l := b.BindComponent("relay")
	assert.Same(t, l, b.Logger())
}

func TestNewIntentContext(t *testing.T) {
	ctx, span := NewIntentContext("discord", "inbound")
	defer span.End()

	_, ok := ctx.Value(CtxLogKey).(*MLogger)
	assert.True(t, ok)
	assert.NotNil(t, Ctx(ctx).Logger)
}
