package main

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network/acceptor"
	"github.com/lk2023060901/sslserver-go/internal/network/session"
	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	"github.com/lk2023060901/sslserver-go/pkg/log"
)

// newEchoServer 创建一个每个会话都回显收到消息的服务端。
func newEchoServer(sslCtx *sslcontext.Context, address string, cfg acceptor.Config, logger *log.MLogger) (*acceptor.Server, error) {
	var srv *acceptor.Server
	srv, err := acceptor.New(sslCtx, address,
		acceptor.WithConfig(cfg),
		acceptor.WithHandler(serverHooks{}),
		acceptor.WithLogger(logger),
		acceptor.WithSessionFactory(func(owner *session.Owner) *session.Session {
			return session.New(owner, &echoHandler{srv: srv})
		}),
	)
	return srv, err
}

// echoHandler 将收到的消息原样发回给发送方。
type echoHandler struct {
	session.BaseHandler
	srv *acceptor.Server
}

func (h *echoHandler) OnConnected(s *session.Session) {
	s.Logger().Info("client connected")
}

func (h *echoHandler) OnHandshaked(s *session.Session) {
	state := s.ConnectionState()
	s.Logger().Info("client handshaked", zap.Uint16("version", state.Version))
}

func (h *echoHandler) OnDisconnected(s *session.Session) {
	s.Logger().Info("client disconnected",
		zap.Int64("bytesSent", s.BytesSent()),
		zap.Int64("bytesReceived", s.BytesReceived()))
}

func (h *echoHandler) OnReceived(s *session.Session, data []byte) {
	s.Logger().Debug("message received", zap.ByteString("message", data))
	h.srv.MulticastTo(data, s.ID())
}

func (h *echoHandler) OnError(s *session.Session, err error) {
	s.Logger().Warn("session error", zap.Error(err))
}

// serverHooks 记录服务端生命周期。
type serverHooks struct {
	acceptor.BaseHandler
}

func (serverHooks) OnStarted(srv *acceptor.Server) {
	srv.Logger().Info("accepting connections", zap.Stringer("endpoint", srv.Endpoint()))
}

func (serverHooks) OnStopped(srv *acceptor.Server) {
	srv.Logger().Info("stopped accepting connections")
}

func (serverHooks) OnError(srv *acceptor.Server, sess *session.Session, err error) {
	if sess == nil {
		srv.Logger().Warn("server error", zap.Error(err))
	}
}
