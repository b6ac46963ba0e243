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
	"github.com/prometheus/client_golang/prometheus"
)

// TrafficSource 提供服务端聚合的流量计数。
type TrafficSource interface {
	BytesSent() int64
	BytesReceived() int64
	BytesPending() int64
}

var (
	trafficBytesSentDesc = prometheus.NewDesc(
		prometheus.BuildFQName(sslserverNamespace, serverSubsystem, "bytes_sent"),
		"服务端自启动以来发送的字节数",
		[]string{serverIDLabelName}, nil)

	trafficBytesReceivedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(sslserverNamespace, serverSubsystem, "bytes_received"),
		"服务端自启动以来接收的字节数",
		[]string{serverIDLabelName}, nil)

	trafficBytesPendingDesc = prometheus.NewDesc(
		prometheus.BuildFQName(sslserverNamespace, serverSubsystem, "bytes_pending"),
		"所有会话发送队列中等待写出的字节数",
		[]string{serverIDLabelName}, nil)
)

// TrafficCollector 在每次采集时从 TrafficSource 读取计数。
//
// 服务端的字节计数在 Start 时清零，因此 bytes_sent/bytes_received 以 gauge 形式导出。
type TrafficCollector struct {
	serverID string
	source   TrafficSource
}

var _ prometheus.Collector = (*TrafficCollector)(nil)

// NewTrafficCollector 创建一个 TrafficCollector。
func NewTrafficCollector(serverID string, source TrafficSource) *TrafficCollector {
	return &TrafficCollector{serverID: serverID, source: source}
}

func (c *TrafficCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- trafficBytesSentDesc
	ch <- trafficBytesReceivedDesc
	ch <- trafficBytesPendingDesc
}

func (c *TrafficCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(trafficBytesSentDesc, prometheus.GaugeValue,
		float64(c.source.BytesSent()), c.serverID)
	ch <- prometheus.MustNewConstMetric(trafficBytesReceivedDesc, prometheus.GaugeValue,
		float64(c.source.BytesReceived()), c.serverID)
	ch <- prometheus.MustNewConstMetric(trafficBytesPendingDesc, prometheus.GaugeValue,
		float64(c.source.BytesPending()), c.serverID)
}
