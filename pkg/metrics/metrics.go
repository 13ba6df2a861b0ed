// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// shimNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	shimNamespace = "discordshim"

	relaySubsystem    = "relay"
	chatSubsystem     = "chat"
	presenceSubsystem = "presence"

	// 以下为当前使用的通用标签名。
	resultLabelName = "result"
	kindLabelName   = "kind"
	stageLabelName  = "stage"

	ResultSuccess = "success"
	ResultFail    = "fail"
	ResultSkipped = "skipped"
)

var (
	// sizeBuckets 为帧大小的桶划分，单位为字节。
	sizeBuckets = prometheus.ExponentialBuckets(64, 4, 10)

	ConnectedSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: shimNamespace,
			Subsystem: relaySubsystem,
			Name:      "connected_sessions",
			Help:      "number of device connections currently registered",
		})

	FramesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: shimNamespace,
			Subsystem: relaySubsystem,
			Name:      "frames_received_total",
			Help:      "number of frames read from device connections",
		})

	FrameSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: shimNamespace,
			Subsystem: relaySubsystem,
			Name:      "frame_size_bytes",
			Help:      "payload size of frames read from device connections",
			Buckets:   sizeBuckets,
		})

	ConnectionErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: shimNamespace,
			Subsystem: relaySubsystem,
			Name:      "connection_errors_total",
			Help:      "errors that terminated a device connection, by stage",
		}, []string{stageLabelName})

	OutboundRoutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: shimNamespace,
			Subsystem: relaySubsystem,
			Name:      "outbound_writes_total",
			Help:      "device-bound request writes, by kind and result",
		}, []string{kindLabelName, resultLabelName})

	ChatDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: shimNamespace,
			Subsystem: chatSubsystem,
			Name:      "deliveries_total",
			Help:      "chat platform deliveries, by kind and result",
		}, []string{kindLabelName, resultLabelName})

	PresenceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: shimNamespace,
			Subsystem: presenceSubsystem,
			Name:      "updates_total",
			Help:      "presence update attempts, by result",
		}, []string{resultLabelName})

	registerOnce     sync.Once
	metricRegisterer prometheus.Registerer
)

// GetRegisterer 返回全局 Prometheus Registerer。
// 如果尚未通过 Register 显式设置，则返回 prometheus.DefaultRegisterer。
func GetRegisterer() prometheus.Registerer {
	if metricRegisterer == nil {
		return prometheus.DefaultRegisterer
	}
	return metricRegisterer
}

// Register 注册当前定义的所有指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(ConnectedSessions)
		r.MustRegister(FramesReceived)
		r.MustRegister(FrameSize)
		r.MustRegister(ConnectionErrors)
		r.MustRegister(OutboundRoutes)
		r.MustRegister(ChatDeliveries)
		r.MustRegister(PresenceUpdates)
		metricRegisterer = r
	})
}

// ResultOf 将 error 映射为 result 标签值。
func ResultOf(err error) string {
	if err != nil {
		return ResultFail
	}
	return ResultSuccess
}
