package session

import (
	"crypto/tls"
	"time"

	"go.uber.org/atomic"

	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/util/conc"
)

const (
	DefaultReceiveBufferSize = 8192
	DefaultSendBufferSize    = 8192
	DefaultShutdownTimeout   = time.Second
)

// Options 为单个会话的连接参数，由服务端配置派生。
type Options struct {
	// ReceiveBufferSize 为接收缓冲区初始容量，读满时自动翻倍。
	ReceiveBufferSize int
	// SendBufferSize 为两个发送缓冲区各自的初始容量。
	SendBufferSize int
	// KeepAlive 表示是否开启 TCP keep-alive。
	KeepAlive bool
	// NoDelay 表示是否关闭 Nagle 算法。
	NoDelay bool
	// ShutdownTimeout 为断开时发送 TLS close_notify 的最长等待时间。
	ShutdownTimeout time.Duration
}

func (o Options) normalize() Options {
	if o.ReceiveBufferSize <= 0 {
		o.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = DefaultSendBufferSize
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	return o
}

// Counters 为服务端范围内所有会话共享的流量计数。
type Counters struct {
	BytesSent     atomic.Int64
	BytesReceived atomic.Int64
}

// Reset 将计数清零。
func (c *Counters) Reset() {
	c.BytesSent.Store(0)
	c.BytesReceived.Store(0)
}

// Owner 汇集了会话运行所需的服务端资源，由服务端创建并在所有会话间共享。
type Owner struct {
	// TLSConfig 为服务端角色的 TLS 配置。
	TLSConfig *tls.Config
	// Options 为会话连接参数。
	Options Options
	// Pool 用于执行握手、读、写等异步操作。
	Pool *conc.Pool[struct{}]
	// Registry 为会话索引，会话在断开流程的最后将自己移除。
	Registry *Manager
	// Events 为服务端级别的会话回调，可以为 nil。
	Events Events
	// Counters 为服务端聚合的流量计数，可以为 nil。
	Counters *Counters
	// Logger 为会话日志的父 Logger，可以为 nil。
	Logger *log.MLogger
}

func (o *Owner) events() Events {
	if o.Events == nil {
		return nopEvents{}
	}
	return o.Events
}

func (o *Owner) logger() *log.MLogger {
	if o.Logger == nil {
		return log.With(log.FieldComponent("session"))
	}
	return o.Logger
}
