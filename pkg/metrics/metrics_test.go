package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	// 第二次调用不会 panic。
	Register(r)
	assert.Equal(t, prometheus.Registerer(r), GetRegisterer())

	ChatDeliveries.WithLabelValues("file", ResultOf(nil)).Inc()
	ChatDeliveries.WithLabelValues("file", ResultOf(errors.New("x"))).Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(ChatDeliveries.WithLabelValues("file", ResultSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(ChatDeliveries.WithLabelValues("file", ResultFail)))

	families, err := r.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
