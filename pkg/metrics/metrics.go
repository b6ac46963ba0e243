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
	// #nosec
	_ "net/http/pprof"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// sslserverNamespace 是当前项目所有 Prometheus 指标使用的命名空间。
	sslserverNamespace = "sslserver"

	serverSubsystem = "server"

	// 以下为当前使用的通用标签名。
	serverIDLabelName = "server_id"
	resultLabelName   = "result"
	stageLabelName    = "stage"

	SuccessLabel = "success"
	FailureLabel = "failure"
)

var (
	ServerMetricsRegisterOnce sync.Once

	// ServerSessions 为当前已连接的会话数量。
	ServerSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: sslserverNamespace,
			Subsystem: serverSubsystem,
			Name:      "sessions",
			Help:      "当前已连接的会话数量",
		}, []string{serverIDLabelName})

	// ServerAcceptedTotal 为监听套接字累计接受的连接数。
	ServerAcceptedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: sslserverNamespace,
			Subsystem: serverSubsystem,
			Name:      "accepted_total",
			Help:      "累计接受的连接数",
		}, []string{serverIDLabelName})

	// ServerHandshakesTotal 按结果统计 TLS 握手次数。
	ServerHandshakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: sslserverNamespace,
			Subsystem: serverSubsystem,
			Name:      "handshakes_total",
			Help:      "TLS 握手次数",
		}, []string{serverIDLabelName, resultLabelName})

	// ServerErrorsTotal 按阶段统计上报给 OnError 的错误数。
	ServerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: sslserverNamespace,
			Subsystem: serverSubsystem,
			Name:      "errors_total",
			Help:      "按阶段统计的会话错误数",
		}, []string{serverIDLabelName, stageLabelName})

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

// Register 注册当前定义的所有服务端指标，重复调用只生效一次。
func Register(r prometheus.Registerer) {
	ServerMetricsRegisterOnce.Do(func() {
		r.MustRegister(ServerSessions)
		r.MustRegister(ServerAcceptedTotal)
		r.MustRegister(ServerHandshakesTotal)
		r.MustRegister(ServerErrorsTotal)
		metricRegisterer = r
	})
}

// CleanupServerMetrics 删除指定服务端的所有标签值，在服务端释放时调用。
func CleanupServerMetrics(serverID string) {
	labels := prometheus.Labels{serverIDLabelName: serverID}
	ServerSessions.DeletePartialMatch(labels)
	ServerAcceptedTotal.DeletePartialMatch(labels)
	ServerHandshakesTotal.DeletePartialMatch(labels)
	ServerErrorsTotal.DeletePartialMatch(labels)
}
