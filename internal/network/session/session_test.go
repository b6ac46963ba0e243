package session

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/atomic"

	"github.com/lk2023060901/sslserver-go/internal/network"
	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	"github.com/lk2023060901/sslserver-go/pkg/util/conc"
)

// recordingHandler 记录回调次数与收到的数据。
type recordingHandler struct {
	BaseHandler

	connected    atomic.Int32
	handshaked   atomic.Int32
	disconnected atomic.Int32
	empty        atomic.Int32
	errs         atomic.Int32

	mu       sync.Mutex
	received bytes.Buffer
	lastErr  error

	onHandshaked func(s *Session)
	onReceived   func(s *Session, data []byte)
}

func (h *recordingHandler) OnConnected(*Session) { h.connected.Inc() }

func (h *recordingHandler) OnHandshaked(s *Session) {
	h.handshaked.Inc()
	if h.onHandshaked != nil {
		h.onHandshaked(s)
	}
}

func (h *recordingHandler) OnDisconnected(*Session) { h.disconnected.Inc() }

func (h *recordingHandler) OnEmpty(*Session) { h.empty.Inc() }

func (h *recordingHandler) OnReceived(s *Session, data []byte) {
	h.mu.Lock()
	h.received.Write(data)
	h.mu.Unlock()
	if h.onReceived != nil {
		h.onReceived(s, data)
	}
}

func (h *recordingHandler) OnError(_ *Session, err error) {
	h.mu.Lock()
	h.lastErr = err
	h.mu.Unlock()
	h.errs.Inc()
}

func (h *recordingHandler) receivedLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.received.Len()
}

func (h *recordingHandler) lastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

type SessionSuite struct {
	suite.Suite

	listener  net.Listener
	serverCfg *tls.Config
	clientCfg *tls.Config
	pool      *conc.Pool[struct{}]
	registry  *Manager
}

func (s *SessionSuite) SetupSuite() {
	ctx, certPEM, err := sslcontext.SelfSigned()
	s.Require().NoError(err)
	s.serverCfg, err = ctx.TLSConfig()
	s.Require().NoError(err)
	s.clientCfg, err = sslcontext.ClientConfig(certPEM, "127.0.0.1")
	s.Require().NoError(err)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.pool = conc.NewPool[struct{}](0, conc.WithConcealPanic(true))
}

func (s *SessionSuite) TearDownSuite() {
	s.listener.Close()
	s.pool.Release()
}

func (s *SessionSuite) SetupTest() {
	s.registry = NewManager()
}

func (s *SessionSuite) owner(opts Options) *Owner {
	return &Owner{
		TLSConfig: s.serverCfg,
		Options:   opts,
		Pool:      s.pool,
		Registry:  s.registry,
		Counters:  &Counters{},
	}
}

// connect 建立一对已连接的会话与客户端连接，客户端握手在后台进行。
func (s *SessionSuite) connect(owner *Owner, h Handler) (*Session, *tls.Conn) {
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := s.listener.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	raw, err := net.Dial("tcp", s.listener.Addr().String())
	s.Require().NoError(err)
	client := tls.Client(raw, s.clientCfg)

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		s.FailNow("accept timeout")
	}

	sess := New(owner, h)
	s.Require().NoError(s.registry.Register(sess))
	s.Require().True(sess.Connect(conn))
	s.T().Cleanup(func() {
		client.Close()
		sess.Disconnect()
	})
	return sess, client
}

func (s *SessionSuite) TestNotHandshakedRejects() {
	sess := New(s.owner(Options{}), nil)
	s.Equal(StateCreated, sess.State())
	s.False(sess.IsConnected())
	s.False(sess.IsHandshaked())

	s.Equal(0, sess.Send([]byte("x")))
	s.False(sess.SendAsync([]byte("x")))
	s.Equal(0, sess.Receive(make([]byte, 4)))
	s.Equal("", sess.ReceiveText(4))
	s.False(sess.ReceiveAsync())
	s.False(sess.Disconnect())
	s.NoError(sess.Close())
	s.Zero(sess.BytesPending())
	s.Nil(sess.RemoteAddr())
	s.Nil(sess.LocalAddr())
	s.Error(sess.Context().Err())
	s.Equal(tls.ConnectionState{}, sess.ConnectionState())
}

func (s *SessionSuite) TestHandshakeAndPing() {
	h := &recordingHandler{}
	h.onHandshaked = func(sess *Session) {
		sess.SendAsyncText("ping")
	}
	sess, client := s.connect(s.owner(Options{}), h)

	s.Require().NoError(client.Handshake())
	buf := make([]byte, 4)
	_, err := io.ReadFull(client, buf)
	s.Require().NoError(err)
	s.Equal("ping", string(buf))

	s.Eventually(func() bool { return sess.BytesSent() == 4 }, 5*time.Second, 10*time.Millisecond)
	s.True(sess.IsHandshaked())
	s.Equal(StateHandshaked, sess.State())
	s.EqualValues(1, h.connected.Load())
	s.EqualValues(1, h.handshaked.Load())
	s.EqualValues(4, sess.Owner().Counters.BytesSent.Load())
	s.Equal(uint16(tls.VersionTLS12), sess.ConnectionState().Version)
	s.NotNil(sess.RemoteAddr())
	s.NotNil(sess.LocalAddr())
	s.NoError(sess.Context().Err())

	// 队列写完后触发 OnEmpty
	s.Eventually(func() bool { return h.empty.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	// 对端关闭
	client.Close()
	s.Eventually(func() bool { return h.disconnected.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.False(sess.IsConnected())
	s.Equal(StateDisconnected, sess.State())
	_, ok := s.registry.Get(sess.ID())
	s.False(ok)
	s.Zero(h.errs.Load())
	s.Error(sess.Context().Err())
}

func (s *SessionSuite) TestReceive() {
	h := &recordingHandler{}
	sess, client := s.connect(s.owner(Options{}), h)
	s.Require().NoError(client.Handshake())

	_, err := client.Write([]byte("hello"))
	s.Require().NoError(err)
	s.Eventually(func() bool { return h.receivedLen() == 5 }, 5*time.Second, 10*time.Millisecond)
	s.EqualValues(5, sess.BytesReceived())
	s.EqualValues(5, sess.Owner().Counters.BytesReceived.Load())
	s.True(sess.ReceiveAsync())
}

func (s *SessionSuite) TestSendAsyncOrdering() {
	h := &recordingHandler{}
	var expected bytes.Buffer
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&expected, "message-%04d;", i)
	}

	ready := make(chan struct{})
	h.onHandshaked = func(*Session) { close(ready) }
	sess, client := s.connect(s.owner(Options{SendBufferSize: 64}), h)
	s.Require().NoError(client.Handshake())
	<-ready

	go func() {
		for i := 0; i < 500; i++ {
			sess.SendAsyncText(fmt.Sprintf("message-%04d;", i))
		}
	}()

	got := make([]byte, expected.Len())
	_, err := io.ReadFull(client, got)
	s.Require().NoError(err)
	s.Equal(expected.String(), string(got))
	s.Eventually(func() bool { return sess.BytesSent() == int64(expected.Len()) }, 5*time.Second, 10*time.Millisecond)
	s.Eventually(func() bool { return sess.BytesPending() == 0 && sess.BytesSending() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func (s *SessionSuite) TestSyncSend() {
	h := &recordingHandler{}
	ready := make(chan struct{})
	h.onHandshaked = func(*Session) { close(ready) }
	sess, client := s.connect(s.owner(Options{}), h)
	s.Require().NoError(client.Handshake())
	<-ready

	s.True(sess.SendAsync(nil))
	s.Equal(0, sess.Send(nil))
	s.Equal(5, sess.SendText("hello"))
	buf := make([]byte, 5)
	_, err := io.ReadFull(client, buf)
	s.Require().NoError(err)
	s.Equal("hello", string(buf))
}

func (s *SessionSuite) TestReceiveBufferDoubles() {
	h := &recordingHandler{}
	sess, client := s.connect(s.owner(Options{ReceiveBufferSize: 16}), h)
	s.Require().NoError(client.Handshake())
	s.Equal(16, sess.ReceiveBufferCapacity())

	_, err := client.Write(bytes.Repeat([]byte{'a'}, 16))
	s.Require().NoError(err)
	s.Eventually(func() bool { return h.receivedLen() == 16 }, 5*time.Second, 10*time.Millisecond)
	s.Eventually(func() bool { return sess.ReceiveBufferCapacity() == 32 }, 5*time.Second, 10*time.Millisecond)

	// 未读满时容量保持不变
	_, err = client.Write([]byte("b"))
	s.Require().NoError(err)
	s.Eventually(func() bool { return h.receivedLen() == 17 }, 5*time.Second, 10*time.Millisecond)
	s.Equal(32, sess.ReceiveBufferCapacity())
}

func (s *SessionSuite) TestDisconnectIdempotent() {
	h := &recordingHandler{}
	ready := make(chan struct{})
	h.onHandshaked = func(*Session) { close(ready) }
	sess, client := s.connect(s.owner(Options{}), h)
	s.Require().NoError(client.Handshake())
	<-ready

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sess.Disconnect() {
				success.Inc()
			}
		}()
	}
	wg.Wait()

	s.Eventually(func() bool { return h.disconnected.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.EqualValues(1, success.Load())
	s.False(sess.Disconnect())
	s.EqualValues(1, h.disconnected.Load())
	_, ok := s.registry.Get(sess.ID())
	s.False(ok)

	// 断开之后的收发全部被拒绝
	s.False(sess.SendAsync([]byte("late")))
	s.Equal(0, sess.Send([]byte("late")))
	s.False(sess.ReceiveAsync())

	// 对端读到 close_notify
	_, err := client.Read(make([]byte, 1))
	s.ErrorIs(err, io.EOF)
}

func (s *SessionSuite) TestDisconnectFromCallback() {
	h := &recordingHandler{}
	h.onReceived = func(sess *Session, _ []byte) {
		sess.Disconnect()
	}
	sess, client := s.connect(s.owner(Options{}), h)
	s.Require().NoError(client.Handshake())

	_, err := client.Write([]byte("bye"))
	s.Require().NoError(err)
	s.Eventually(func() bool { return h.disconnected.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.Equal(0, s.registry.Count())
	s.False(sess.IsConnected())
}

func (s *SessionSuite) TestHandshakeFailure() {
	h := &recordingHandler{}
	sess, client := s.connect(s.owner(Options{}), h)

	// 绕过 TLS，直接写入明文
	raw := client.NetConn()
	_, err := raw.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	s.Require().NoError(err)

	s.Eventually(func() bool { return h.disconnected.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	s.EqualValues(0, h.handshaked.Load())
	s.EqualValues(1, h.errs.Load())

	var se *network.StageError
	s.Require().True(errors.As(h.lastError(), &se))
	s.Equal(network.StageHandshake, se.Stage)
	s.True(errors.Is(h.lastError(), network.ErrHandshakeFailed))
	s.False(sess.IsHandshaked())
}

func (s *SessionSuite) TestEventsOrder() {
	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	owner := s.owner(Options{})
	owner.Events = &orderEvents{record: record}
	h := &orderHandler{record: record}

	sess, client := s.connect(owner, h)
	s.Require().NoError(client.Handshake())
	s.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	}, 5*time.Second, 10*time.Millisecond)
	sess.Disconnect()

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]string{
		"session.connected", "server.connected",
		"session.handshaked", "server.handshaked",
		"session.disconnected", "server.disconnected",
	}, order)
}

type orderHandler struct {
	BaseHandler
	record func(string)
}

func (h *orderHandler) OnConnected(*Session)    { h.record("session.connected") }
func (h *orderHandler) OnHandshaked(*Session)   { h.record("session.handshaked") }
func (h *orderHandler) OnDisconnected(*Session) { h.record("session.disconnected") }

type orderEvents struct {
	nopEvents
	record func(string)
}

func (e *orderEvents) OnConnected(*Session)    { e.record("server.connected") }
func (e *orderEvents) OnHandshaked(*Session)   { e.record("server.handshaked") }
func (e *orderEvents) OnDisconnected(*Session) { e.record("server.disconnected") }

func TestSession(t *testing.T) {
	suite.Run(t, new(SessionSuite))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "created", StateCreated.String())
	assert.Equal(t, "handshaked", StateHandshaked.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestOptionsNormalize(t *testing.T) {
	opts := Options{}.normalize()
	assert.Equal(t, DefaultReceiveBufferSize, opts.ReceiveBufferSize)
	assert.Equal(t, DefaultSendBufferSize, opts.SendBufferSize)
	assert.Equal(t, DefaultShutdownTimeout, opts.ShutdownTimeout)

	c := &Counters{}
	c.BytesSent.Add(3)
	c.Reset()
	assert.Zero(t, c.BytesSent.Load())
}

func TestNewDefaults(t *testing.T) {
	sess := New(nil, nil)
	require.NotNil(t, sess)
	assert.NotNil(t, sess.Handler())
	assert.NotNil(t, sess.Owner())
	assert.NotNil(t, sess.Logger())
	assert.False(t, sess.Connect(nil))
}
