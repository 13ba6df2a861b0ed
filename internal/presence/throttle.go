package presence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/lk2023060901/discord-shim-go/internal/chat"
	"github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/metrics"
)

const (
	// DefaultCooldown 为两次在线状态更新之间的最短间隔。
	DefaultCooldown = 60 * time.Second

	// StreamURL 为实例计数状态使用的直播链接。
	StreamURL = "https://octoprint.org"
)

// Result 为一次 MaybeUpdate 的结果。
type Result int

const (
	Skipped Result = iota
	Updated
	// Failed 表示已尝试更新但平台返回错误；冷却期照常开始。
	Failed
)

func (r Result) String() string {
	switch r {
	case Updated:
		return metrics.ResultSuccess
	case Failed:
		return metrics.ResultFail
	default:
		return metrics.ResultSkipped
	}
}

// Publisher 为在线状态的发布方。
type Publisher interface {
	SetPresence(ctx context.Context, p chat.PresenceUpdate) error
}

// InstancesText 返回实例计数状态的文本。
func InstancesText(count int) string {
	return fmt.Sprintf("to %d instances", count)
}

// Throttle 限制全局在线状态的更新频率。
//
// 检查冷却期、发布与记录时间戳都在同一把锁内完成，
// 发布期间到达的调用会看到新的时间戳并跳过。
type Throttle struct {
	mu       sync.Mutex
	last     time.Time
	clock    clockwork.Clock
	cooldown time.Duration

	publisher Publisher
}

// Option 配置 Throttle。
type Option func(*Throttle)

// WithClock 替换时钟，测试中使用 clockwork.NewFakeClock。
func WithClock(c clockwork.Clock) Option {
	return func(t *Throttle) {
		t.clock = c
	}
}

// WithCooldown 替换冷却期。
func WithCooldown(d time.Duration) Option {
	return func(t *Throttle) {
		t.cooldown = d
	}
}

// NewThrottle 创建 Throttle。首次调用总会触发更新。
func NewThrottle(publisher Publisher, opts ...Option) *Throttle {
	t := &Throttle{
		clock:     clockwork.NewRealClock(),
		cooldown:  DefaultCooldown,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaybeUpdate 在冷却期已过时发布 "to N instances" 直播状态。
func (t *Throttle) MaybeUpdate(ctx context.Context, count int) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if !t.last.IsZero() && now.Sub(t.last) < t.cooldown {
		metrics.PresenceUpdates.WithLabelValues(Skipped.String()).Inc()
		return Skipped
	}

	result := Updated
	if err := t.publisher.SetPresence(ctx, chat.Streaming(InstancesText(count), StreamURL)); err != nil {
		log.Ctx(ctx).Warn("failed to update presence", zap.Int("instances", count), zap.Error(err))
		result = Failed
	}
	t.last = now
	metrics.PresenceUpdates.WithLabelValues(result.String()).Inc()
	return result
}

// LastUpdate 返回最近一次更新的时间，尚未更新时为零值。
func (t *Throttle) LastUpdate() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
