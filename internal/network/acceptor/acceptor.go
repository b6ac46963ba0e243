package acceptor

import (
	"time"

	"github.com/lk2023060901/sslserver-go/internal/network/session"
	"github.com/lk2023060901/sslserver-go/pkg/log"
)

const (
	DefaultBacklog = 1024
)

// Config 描述服务端监听套接字与会话的配置。
//
// 说明：
//   - Backlog 为 listen 队列长度；
//   - DualMode 为 true 时使用 IPv6 套接字并关闭 IPV6_V6ONLY，同时接受 IPv4 连接；
//   - ReuseAddress 对应 SO_REUSEADDR；
//   - ExclusiveAddressUse 仅在 Windows 上有意义，其余平台忽略；
//   - ReceiveBufferSize/SendBufferSize 为每个会话缓冲区的初始容量；
//   - PoolSize 为执行握手与收发的协程池大小，<=0 表示不限制。
type Config struct {
	Backlog             int           `mapstructure:"backlog"`
	DualMode            bool          `mapstructure:"dualMode"`
	KeepAlive           bool          `mapstructure:"keepAlive"`
	NoDelay             bool          `mapstructure:"noDelay"`
	ReuseAddress        bool          `mapstructure:"reuseAddress"`
	ExclusiveAddressUse bool          `mapstructure:"exclusiveAddressUse"`
	ReceiveBufferSize   int           `mapstructure:"receiveBufferSize"`
	SendBufferSize      int           `mapstructure:"sendBufferSize"`
	ShutdownTimeout     time.Duration `mapstructure:"shutdownTimeout"`
	PoolSize            int           `mapstructure:"poolSize"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Backlog:           DefaultBacklog,
		ReceiveBufferSize: session.DefaultReceiveBufferSize,
		SendBufferSize:    session.DefaultSendBufferSize,
		ShutdownTimeout:   session.DefaultShutdownTimeout,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Backlog <= 0 {
		c.Backlog = def.Backlog
	}
	if c.ReceiveBufferSize <= 0 {
		c.ReceiveBufferSize = def.ReceiveBufferSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	return c
}

func (c Config) sessionOptions() session.Options {
	return session.Options{
		ReceiveBufferSize: c.ReceiveBufferSize,
		SendBufferSize:    c.SendBufferSize,
		KeepAlive:         c.KeepAlive,
		NoDelay:           c.NoDelay,
		ShutdownTimeout:   c.ShutdownTimeout,
	}
}

// Handler 由框架使用者实现，用于在服务端的各个阶段插入自定义逻辑。
//
// 会话相关的回调在会话级 Handler 之后触发，执行于协程池的 worker 上。
// 在回调中调用 Stop/Restart 会导致死锁。
type Handler interface {
	// OnStarted 在监听成功、接受循环启动之前调用。
	OnStarted(srv *Server)

	// OnStopped 在所有会话断开之后调用。
	OnStopped(srv *Server)

	OnConnected(srv *Server, sess *session.Session)
	OnHandshaked(srv *Server, sess *session.Session)
	OnDisconnected(srv *Server, sess *session.Session)

	// OnError 在发生非断开类错误时调用。accept 阶段的错误 sess 为 nil。
	OnError(srv *Server, sess *session.Session, err error)
}

// BaseHandler 为 Handler 的空实现。
type BaseHandler struct{}

var _ Handler = BaseHandler{}

func (BaseHandler) OnStarted(*Server) {}
func (BaseHandler) OnStopped(*Server) {}
func (BaseHandler) OnConnected(*Server, *session.Session) {}
func (BaseHandler) OnHandshaked(*Server, *session.Session) {}
func (BaseHandler) OnDisconnected(*Server, *session.Session) {}
func (BaseHandler) OnError(*Server, *session.Session, error) {}

// SessionFactory 为每个新连接创建会话，返回的会话必须属于 owner。
type SessionFactory func(owner *session.Owner) *session.Session

func defaultSessionFactory(owner *session.Owner) *session.Session {
	return session.New(owner, nil)
}

type options struct {
	config  Config
	handler Handler
	factory SessionFactory
	logger  *log.MLogger
}

// Option 为 Server 的构造选项。
type Option func(*options)

// WithConfig 设置服务端配置，未设置的字段使用默认值。
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithHandler 设置服务端级别的回调。
func WithHandler(h Handler) Option {
	return func(o *options) {
		o.handler = h
	}
}

// WithSessionFactory 设置会话工厂，用于创建自定义 Handler 的会话。
func WithSessionFactory(f SessionFactory) Option {
	return func(o *options) {
		o.factory = f
	}
}

// WithLogger 设置服务端使用的父 Logger。
func WithLogger(l *log.MLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}
