package acceptor

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network"
	"github.com/lk2023060901/sslserver-go/internal/network/session"
	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/metrics"
	"github.com/lk2023060901/sslserver-go/pkg/util/conc"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
)

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// Server 是 TLS 服务端：持有监听套接字、会话索引与协程池，驱动接受循环。
//
// 设计要点：
//   - 每接受一个连接就通过 SessionFactory 创建会话、注册、再交给会话自身完成握手；
//   - 会话在断开流程的最后将自己从索引中移除，Stop 等待索引清空后才返回；
//   - Start/Stop 可以交替调用多次，Close 之后不能再启动。
type Server struct {
	log.Binder

	id        uuid.UUID
	address   string
	cfg       Config
	sslCtx    *sslcontext.Context
	tlsConfig *tls.Config
	handler   Handler
	factory   SessionFactory

	pool     *conc.Pool[struct{}]
	registry *session.Manager
	counters *session.Counters
	owner    *session.Owner

	// mu 串行化 Start/Stop/Close。
	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	endpoint   atomic.Pointer[net.TCPAddr]

	started   atomic.Bool
	accepting atomic.Bool
	stopping  atomic.Bool
	closed    atomic.Bool
}

// New 创建一个监听 address 的服务端，创建后需要调用 Start 才开始接受连接。
func New(sslCtx *sslcontext.Context, address string, opts ...Option) (*Server, error) {
	if sslCtx == nil {
		return nil, merr.WrapErrParameterMissing("sslCtx")
	}
	if _, _, err := net.SplitHostPort(address); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("invalid address %q: %s", address, err.Error())
	}
	tlsConfig, err := sslCtx.TLSConfig()
	if err != nil {
		return nil, merr.WrapErrCertificateInvalid("ssl context", err)
	}

	o := options{
		config:  DefaultConfig(),
		handler: BaseHandler{},
		factory: defaultSessionFactory,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.handler == nil {
		o.handler = BaseHandler{}
	}
	if o.factory == nil {
		o.factory = defaultSessionFactory
	}

	s := &Server{
		id:        uuid.New(),
		address:   address,
		cfg:       o.config.normalize(),
		sslCtx:    sslCtx,
		tlsConfig: tlsConfig,
		handler:   o.handler,
		factory:   o.factory,
		registry:  session.NewManager(),
		counters:  &session.Counters{},
	}
	s.pool = conc.NewPool[struct{}](s.cfg.PoolSize,
		conc.WithName("sslserver-"+s.id.String()),
		conc.WithConcealPanic(true))

	logger := o.logger
	if logger == nil {
		logger = log.With(log.FieldComponent("server"))
	}
	logger = logger.With(log.FieldServerID(s.id.String()), zap.String("address", address))
	s.SetLogger(logger)

	s.owner = &session.Owner{
		TLSConfig: tlsConfig,
		Options:   s.cfg.sessionOptions(),
		Pool:      s.pool,
		Registry:  s.registry,
		Events:    serverEvents{s: s},
		Counters:  s.counters,
		Logger:    logger,
	}
	return s, nil
}

// ID 返回服务端的唯一标识。
func (s *Server) ID() uuid.UUID { return s.id }

// Address 返回构造时指定的监听地址。
func (s *Server) Address() string { return s.address }

// Endpoint 返回实际绑定的地址，监听端口为 0 时可以通过它获得系统分配的端口。
// 从未启动过时返回 nil。
func (s *Server) Endpoint() net.Addr {
	if addr := s.endpoint.Load(); addr != nil {
		return addr
	}
	return nil
}

func (s *Server) Config() Config { return s.cfg }
func (s *Server) SSLContext() *sslcontext.Context { return s.sslCtx }
func (s *Server) IsStarted() bool { return s.started.Load() }
func (s *Server) IsAccepting() bool { return s.accepting.Load() }
func (s *Server) BytesSent() int64 { return s.counters.BytesSent.Load() }
func (s *Server) BytesReceived() int64 { return s.counters.BytesReceived.Load() }
func (s *Server) ConnectedSessions() int { return s.registry.Count() }

// Collector 返回导出本服务端流量计数的 Prometheus Collector。
func (s *Server) Collector() *metrics.TrafficCollector {
	return metrics.NewTrafficCollector(s.id.String(), s)
}

// BytesPending 返回所有会话发送队列中尚未写出的字节数。
func (s *Server) BytesPending() int64 {
	return lo.SumBy(s.registry.Snapshot(), func(sess *session.Session) int64 {
		return sess.BytesPending()
	})
}

// Start 开始监听并启动接受循环。已启动或已关闭时返回 false。
func (s *Server) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() || s.started.Load() {
		return false
	}

	ln, err := listen(s.address, s.cfg)
	if err != nil {
		s.Logger().Error("listen failed", zap.Error(err))
		return false
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.endpoint.Store(addr)
	}

	s.counters.Reset()
	s.listener = ln
	s.acceptDone = make(chan struct{})
	s.accepting.Store(true)
	s.started.Store(true)

	s.Logger().Info("server started", zap.Stringer("endpoint", ln.Addr()))
	s.handler.OnStarted(s)

	go s.acceptLoop(ln, s.acceptDone)
	return true
}

// Stop 关闭监听套接字并断开所有会话，返回时所有会话都已从索引中移除。
//
// 未启动或另一个 Stop 正在进行时返回 false。
func (s *Server) Stop() bool {
	if !s.started.Load() || !s.stopping.CompareAndSwap(false, true) {
		return false
	}
	defer s.stopping.Store(false)

	s.mu.Lock()
	if !s.started.Load() {
		s.mu.Unlock()
		return false
	}

	s.accepting.Store(false)
	if err := s.listener.Close(); err != nil {
		s.Logger().Debug("close listener failed", zap.Error(err))
	}
	<-s.acceptDone
	s.listener = nil

	s.disconnectAll()
	s.registry.WaitEmpty()
	s.started.Store(false)
	s.mu.Unlock()

	s.Logger().Info("server stopped")
	s.handler.OnStopped(s)
	return true
}

// Restart 先停止再启动服务端。
func (s *Server) Restart() bool {
	if !s.Stop() {
		return false
	}
	return s.Start()
}

// Close 停止服务端并释放协程池，之后不能再次启动。
func (s *Server) Close() error {
	// 与 Start 互斥，之后的 Start 都会看到 closed
	s.mu.Lock()
	closed := s.closed.Swap(true)
	s.mu.Unlock()
	if closed {
		return nil
	}

	s.Stop()
	s.pool.Release()
	metrics.CleanupServerMetrics(s.id.String())
	return nil
}

// DisconnectAll 断开所有已注册的会话，服务端未启动时返回 false。
func (s *Server) DisconnectAll() bool {
	if !s.started.Load() {
		return false
	}
	s.disconnectAll()
	return true
}

func (s *Server) disconnectAll() {
	s.registry.Range(func(sess *session.Session) bool {
		sess.Disconnect()
		return true
	})
}

// FindSession 根据 id 查找会话，不存在时返回 nil。
func (s *Server) FindSession(id uuid.UUID) *session.Session {
	sess, ok := s.registry.Get(id)
	if !ok {
		return nil
	}
	return sess
}

// Sessions 返回当前所有已注册会话的快照。
func (s *Server) Sessions() []*session.Session {
	return s.registry.Snapshot()
}

// Multicast 将 data 追加到调用时刻所有已注册会话的发送队列。
//
// 未启动时返回 false，data 为空时直接返回 true。尚未握手的会话会被跳过。
func (s *Server) Multicast(data []byte) bool {
	if !s.started.Load() {
		return false
	}
	if len(data) == 0 {
		return true
	}
	s.registry.Range(func(sess *session.Session) bool {
		sess.SendAsync(data)
		return true
	})
	return true
}

// MulticastTo 只向 id 对应的会话发送 data。
//
// 未启动或会话不存在时返回 false，否则返回该会话 SendAsync 的结果。
func (s *Server) MulticastTo(data []byte, id uuid.UUID) bool {
	if !s.started.Load() {
		return false
	}
	if len(data) == 0 {
		return true
	}
	sess, ok := s.registry.Get(id)
	if !ok {
		return false
	}
	return sess.SendAsync(data)
}

func (s *Server) MulticastText(text string) bool {
	return s.Multicast([]byte(text))
}

func (s *Server) MulticastTextTo(text string, id uuid.UUID) bool {
	return s.MulticastTo([]byte(text), id)
}

// acceptLoop 循环接受新连接，直到监听套接字被关闭。
//
// 非断开类的 accept 错误会上报并按指数退避重试，避免在资源耗尽时空转。
func (s *Server) acceptLoop(ln net.Listener, done chan struct{}) {
	defer close(done)

	var delay time.Duration
	for s.accepting.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !s.accepting.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			if network.IsDisconnectError(err) {
				continue
			}

			s.reportError(nil, network.NewStageError(network.StageAccept, err))
			if delay == 0 {
				delay = minAcceptDelay
			} else {
				delay *= 2
			}
			if delay > maxAcceptDelay {
				delay = maxAcceptDelay
			}
			s.Logger().RatedWarn(1, "accept failed, retrying", zap.Duration("delay", delay), zap.Error(err))
			time.Sleep(delay)
			continue
		}

		delay = 0
		s.accept(conn)
	}
}

func (s *Server) accept(conn net.Conn) {
	metrics.ServerAcceptedTotal.WithLabelValues(s.id.String()).Inc()

	sess := s.factory(s.owner)
	if sess == nil || sess.Owner() != s.owner {
		s.Logger().Warn("session factory returned an unusable session, using default")
		sess = defaultSessionFactory(s.owner)
	}
	if err := s.registry.Register(sess); err != nil {
		s.Logger().Warn("register session failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	if !sess.Connect(conn) {
		_ = s.registry.Unregister(sess.ID())
		_ = conn.Close()
	}
}

// reportError 统计错误并通知 Handler.OnError。
func (s *Server) reportError(sess *session.Session, err error) {
	stage := "unknown"
	var se *network.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
		if se.Stage == network.StageHandshake {
			metrics.ServerHandshakesTotal.WithLabelValues(s.id.String(), metrics.FailureLabel).Inc()
		}
	}
	metrics.ServerErrorsTotal.WithLabelValues(s.id.String(), stage).Inc()
	s.handler.OnError(s, sess, err)
}

// serverEvents 将会话事件转发给服务端。
type serverEvents struct {
	s *Server
}

var _ session.Events = serverEvents{}

func (e serverEvents) OnConnected(sess *session.Session) {
	metrics.ServerSessions.WithLabelValues(e.s.id.String()).Inc()
	e.s.handler.OnConnected(e.s, sess)
}

func (e serverEvents) OnHandshaked(sess *session.Session) {
	metrics.ServerHandshakesTotal.WithLabelValues(e.s.id.String(), metrics.SuccessLabel).Inc()
	e.s.handler.OnHandshaked(e.s, sess)
}

func (e serverEvents) OnDisconnected(sess *session.Session) {
	metrics.ServerSessions.WithLabelValues(e.s.id.String()).Dec()
	e.s.handler.OnDisconnected(e.s, sess)
}

func (e serverEvents) OnError(sess *session.Session, err error) {
	e.s.reportError(sess, err)
}
