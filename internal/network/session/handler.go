package session

// Handler 定义了会话级别的回调。
//
// 约定：
//   - 所有回调都在协程池的 worker 上同步执行，回调内应避免长时间阻塞；
//   - 同一会话的 OnReceived 按数据到达顺序串行调用；
//   - OnConnected/OnHandshaked/OnDisconnected 先于服务端级别的同名回调触发。
type Handler interface {
	// OnConnected 在底层 TCP 连接建立、缓冲区准备完毕后调用，此时尚未开始握手。
	OnConnected(s *Session)

	// OnHandshaked 在 TLS 握手成功后调用，此后可以收发数据。
	OnHandshaked(s *Session)

	// OnDisconnected 在会话断开、资源释放之后调用，每个连接周期只会调用一次。
	OnDisconnected(s *Session)

	// OnReceived 在收到数据时调用。
	//
	// data 与会话的接收缓冲区共享内存，仅在本次回调期间有效，需要保留时请自行拷贝。
	OnReceived(s *Session, data []byte)

	// OnEmpty 在发送队列全部写出后调用。
	OnEmpty(s *Session)

	// OnError 在发生非断开类错误时调用，err 的具体类型为 *network.StageError。
	OnError(s *Session, err error)
}

// BaseHandler 为 Handler 的空实现，可嵌入到自定义 Handler 中只覆写关心的回调。
type BaseHandler struct{}

var _ Handler = BaseHandler{}

func (BaseHandler) OnConnected(*Session) {}
func (BaseHandler) OnHandshaked(*Session) {}
func (BaseHandler) OnDisconnected(*Session) {}
func (BaseHandler) OnReceived(*Session, []byte) {}
func (BaseHandler) OnEmpty(*Session) {}
func (BaseHandler) OnError(*Session, error) {}

// Events 为服务端级别的会话事件，由会话所属的服务端实现。
type Events interface {
	OnConnected(s *Session)
	OnHandshaked(s *Session)
	OnDisconnected(s *Session)
	OnError(s *Session, err error)
}

type nopEvents struct{}

func (nopEvents) OnConnected(*Session) {}
func (nopEvents) OnHandshaked(*Session) {}
func (nopEvents) OnDisconnected(*Session) {}
func (nopEvents) OnError(*Session, error) {}
