package session

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network"
	"github.com/lk2023060901/sslserver-go/pkg/buffer/growable"
	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/util/conc"
)

const tracerName = "github.com/lk2023060901/sslserver-go/internal/network/session"

// State 为会话状态。
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateConnected
	StateHandshaking
	StateHandshaked
	StateDisconnecting
	StateDisconnected
)

var stateNames = [...]string{
	StateCreated:       "created",
	StateConnecting:    "connecting",
	StateConnected:     "connected",
	StateHandshaking:   "handshaking",
	StateHandshaked:    "handshaked",
	StateDisconnecting: "disconnecting",
	StateDisconnected:  "disconnected",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	defaultPoolOnce sync.Once
	defaultPool     *conc.Pool[struct{}]
)

func sharedPool() *conc.Pool[struct{}] {
	defaultPoolOnce.Do(func() {
		defaultPool = conc.NewPool[struct{}](0, conc.WithName("session"), conc.WithConcealPanic(true))
	})
	return defaultPool
}

// channel 为一次连接周期内的底层资源。
//
// 每次 Connect 创建一个新的 channel 并分配新的代数 token，异步操作完成时
// 通过 token 判断自己是否仍属于当前周期，过期的完成回调会被直接丢弃。
type channel struct {
	token  uint64
	raw    net.Conn
	tls    *tls.Conn
	ctx    context.Context
	cancel context.CancelFunc

	remoteAddr net.Addr
	localAddr  net.Addr

	// recv 只由接收循环访问。
	recv *growable.Buffer
}

// Session 表示一条经由 TLS 保护的 TCP 连接。
//
// 生命周期：Created -> Connecting -> Connected -> Handshaking -> Handshaked
// -> Disconnecting -> Disconnected。握手成功之前，收发接口一律返回 false/0。
type Session struct {
	log.Binder

	id      uuid.UUID
	owner   *Owner
	opts    Options
	handler Handler
	pool    *conc.Pool[struct{}]
	stats   *Counters

	state   atomic.Int32
	token   atomic.Uint64
	current atomic.Pointer[channel]

	connected     atomic.Bool
	handshaked    atomic.Bool
	disconnecting atomic.Bool
	receiving     atomic.Bool

	// sendMu 保护 sendMain/sendFlush/flushOffset/sending。
	sendMu      sync.Mutex
	sendMain    *growable.Buffer
	sendFlush   *growable.Buffer
	flushOffset int
	sending     bool

	recvCap       atomic.Int64
	bytesPending  atomic.Int64
	bytesSending  atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// New 创建一个属于 owner 的会话，handler 为 nil 时使用 BaseHandler。
func New(owner *Owner, handler Handler) *Session {
	if owner == nil {
		owner = &Owner{}
	}
	if handler == nil {
		handler = BaseHandler{}
	}

	s := &Session{
		id:      uuid.New(),
		owner:   owner,
		opts:    owner.Options.normalize(),
		handler: handler,
		pool:    owner.Pool,
		stats:   owner.Counters,
	}
	if s.pool == nil {
		s.pool = sharedPool()
	}
	if s.stats == nil {
		s.stats = &Counters{}
	}
	s.sendMain = growable.New(0)
	s.sendFlush = growable.New(0)
	s.SetLogger(owner.logger().With(log.FieldSessionID(s.id.String())))
	return s
}

// ID 返回会话的唯一标识，创建后不再改变。
func (s *Session) ID() uuid.UUID { return s.id }

// Owner 返回会话所属的服务端资源。
func (s *Session) Owner() *Owner { return s.owner }

// Handler 返回会话级别的回调。
func (s *Session) Handler() Handler { return s.handler }

// State 返回当前状态。
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) IsConnected() bool  { return s.connected.Load() }
func (s *Session) IsHandshaked() bool { return s.handshaked.Load() }

// Context 返回当前连接周期的上下文，会话断开时被取消。
// 尚未连接时返回一个已取消的上下文。
func (s *Session) Context() context.Context {
	if ch := s.current.Load(); ch != nil {
		return ch.ctx
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// RemoteAddr 返回对端地址，尚未连接时为 nil。
func (s *Session) RemoteAddr() net.Addr {
	if ch := s.current.Load(); ch != nil {
		return ch.remoteAddr
	}
	return nil
}

// LocalAddr 返回本端地址，尚未连接时为 nil。
func (s *Session) LocalAddr() net.Addr {
	if ch := s.current.Load(); ch != nil {
		return ch.localAddr
	}
	return nil
}

// ConnectionState 返回 TLS 连接状态（协商的版本、密码套件、对端证书等）。
func (s *Session) ConnectionState() tls.ConnectionState {
	if ch := s.current.Load(); ch != nil {
		return ch.tls.ConnectionState()
	}
	return tls.ConnectionState{}
}

func (s *Session) BytesPending() int64  { return s.bytesPending.Load() }
func (s *Session) BytesSending() int64  { return s.bytesSending.Load() }
func (s *Session) BytesSent() int64     { return s.bytesSent.Load() }
func (s *Session) BytesReceived() int64 { return s.bytesReceived.Load() }

// ReceiveBufferCapacity 返回接收缓冲区当前容量。
func (s *Session) ReceiveBufferCapacity() int { return int(s.recvCap.Load()) }

// live 判断 ch 是否仍是当前连接周期。
func (s *Session) live(ch *channel) bool {
	return ch != nil && ch.token == s.token.Load() && s.current.Load() == ch
}

// Connect 接管一条已经建立的 TCP 连接并开始 TLS 握手。
//
// 由服务端在接受连接并注册会话之后调用。会话已连接时返回 false。
func (s *Session) Connect(conn net.Conn) bool {
	if conn == nil || s.connected.Load() {
		return false
	}
	s.state.Store(int32(StateConnecting))

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetKeepAlive(s.opts.KeepAlive)
		_ = tcp.SetNoDelay(s.opts.NoDelay)
	}

	cfg := s.owner.TLSConfig
	if cfg == nil {
		cfg = &tls.Config{}
	}
	ch := &channel{
		raw:        conn,
		tls:        tls.Server(conn, cfg),
		remoteAddr: conn.RemoteAddr(),
		localAddr:  conn.LocalAddr(),
		recv:       growable.New(s.opts.ReceiveBufferSize),
	}
	ch.ctx, ch.cancel = context.WithCancel(context.Background())

	s.sendMu.Lock()
	s.sendMain = growable.New(s.opts.SendBufferSize)
	s.sendFlush = growable.New(s.opts.SendBufferSize)
	s.flushOffset = 0
	s.sending = false
	s.sendMu.Unlock()

	s.recvCap.Store(int64(ch.recv.Cap()))
	s.bytesPending.Store(0)
	s.bytesSending.Store(0)
	s.bytesSent.Store(0)
	s.bytesReceived.Store(0)

	ch.token = s.token.Inc()
	s.current.Store(ch)
	s.disconnecting.Store(false)
	s.connected.Store(true)
	s.state.Store(int32(StateConnected))

	s.SetLogger(s.owner.logger().With(
		log.FieldSessionID(s.id.String()),
		log.FieldRemote(ch.remoteAddr),
	))
	s.Logger().Debug("session connected")

	s.handler.OnConnected(s)
	s.owner.events().OnConnected(s)

	// 回调中可能已经断开
	if !s.live(ch) {
		return true
	}

	s.state.Store(int32(StateHandshaking))
	if err := s.pool.Go(func() { s.handshake(ch) }); err != nil {
		s.Logger().Warn("submit handshake failed", zap.Error(err))
		s.Disconnect()
	}
	return true
}

func (s *Session) handshake(ch *channel) {
	ctx, span := otel.Tracer(tracerName).Start(ch.ctx, "tls.handshake",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("session.id", s.id.String()),
			attribute.String("net.peer.addr", addrString(ch.remoteAddr)),
		))
	err := ch.tls.HandshakeContext(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handshake failed")
	} else {
		state := ch.tls.ConnectionState()
		span.SetAttributes(
			attribute.String("tls.version", tls.VersionName(state.Version)),
			attribute.String("tls.cipher", tls.CipherSuiteName(state.CipherSuite)),
		)
	}
	span.End()

	if !s.live(ch) {
		return
	}
	if err != nil {
		s.Logger().Warn("tls handshake failed", zap.Error(err))
		s.reportError(network.StageHandshake, err)
		s.Disconnect()
		return
	}

	s.handshaked.Store(true)
	s.state.Store(int32(StateHandshaked))
	s.Logger().Debug("session handshaked")

	s.handler.OnHandshaked(s)
	s.owner.events().OnHandshaked(s)

	if !s.live(ch) {
		return
	}

	s.sendMu.Lock()
	empty := s.sendMain.IsEmpty() && s.sendFlush.IsEmpty()
	s.sendMu.Unlock()
	if empty {
		s.handler.OnEmpty(s)
	}

	s.tryReceive()
}

// Disconnect 断开会话。
//
// 只有第一次调用会执行完整的清理流程；会话未连接或断开流程已经在进行中时返回 false。
// 断开过程中关闭连接时产生的错误都会被忽略。
func (s *Session) Disconnect() bool {
	if !s.connected.Load() {
		return false
	}
	if !s.disconnecting.CompareAndSwap(false, true) {
		return false
	}
	s.state.Store(int32(StateDisconnecting))

	ch := s.current.Load()
	wasHandshaked := s.handshaked.Swap(false)

	// 先让所有未完成的异步操作失效
	s.token.Inc()
	ch.cancel()

	s.sendMu.Lock()
	inFlight := s.sending
	s.sendMu.Unlock()

	// 有写操作挂起时跳过 close_notify，直接关闭底层连接使其返回
	if wasHandshaked && !inFlight {
		_ = ch.raw.SetWriteDeadline(time.Now().Add(s.opts.ShutdownTimeout))
		if err := ch.tls.CloseWrite(); err != nil {
			s.Logger().Debug("tls close_notify failed", zap.Error(network.NewStageError(network.StageShutdown, err)))
		}
	}
	if tcp, ok := ch.raw.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = ch.raw.Close()

	s.connected.Store(false)
	s.receiving.Store(false)

	s.sendMu.Lock()
	s.sendMain.Clear()
	s.sendFlush.Clear()
	s.flushOffset = 0
	s.sending = false
	s.sendMu.Unlock()
	s.bytesPending.Store(0)
	s.bytesSending.Store(0)

	s.state.Store(int32(StateDisconnected))
	s.Logger().Debug("session disconnected",
		zap.Int64("bytesSent", s.bytesSent.Load()),
		zap.Int64("bytesReceived", s.bytesReceived.Load()))

	s.handler.OnDisconnected(s)
	s.owner.events().OnDisconnected(s)

	if s.owner.Registry != nil {
		_ = s.owner.Registry.Unregister(s.id)
	}
	return true
}

// Close 断开会话，始终返回 nil。
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}

// reportError 过滤掉断开类错误后，依次通知会话级与服务端级的 OnError。
func (s *Session) reportError(stage network.Stage, err error) {
	if err == nil {
		return
	}
	if network.IsDisconnectError(err) {
		s.Logger().Debug("session closed by peer", zap.String("stage", string(stage)), zap.Error(err))
		return
	}
	se := network.NewStageError(stage, err)
	s.handler.OnError(s, se)
	s.owner.events().OnError(s, se)
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
