package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/cockroachdb/errors"
)

// Stage 表示 TLS 会话处理链路中的阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageAccept    Stage = "accept"    // 监听套接字接受新连接
	StageHandshake Stage = "handshake" // TLS 握手（服务端角色）
	StageRecv      Stage = "recv"      // 从安全通道读取数据
	StageSend      Stage = "send"      // 向安全通道写出数据
	StageShutdown  Stage = "shutdown"  // 关闭安全通道或底层连接
)

// 统一的错误码常量。
//
// 注意：这些是用于日志/监控的稳定字符串，真正的 error 对象在下面通过 errors.New 构造。
const (
	ErrCodeAcceptFailed    = "network:accept_failed"
	ErrCodeHandshakeFailed = "network:handshake_failed"
	ErrCodeRecvFailed      = "network:recv_failed"
	ErrCodeSendFailed      = "network:send_failed"
	ErrCodeShutdownFailed  = "network:shutdown_failed"
)

var (
	// ErrAcceptFailed 表示监听套接字 Accept 失败。
	ErrAcceptFailed = errors.New(ErrCodeAcceptFailed)

	// ErrHandshakeFailed 表示 TLS 握手失败。
	ErrHandshakeFailed = errors.New(ErrCodeHandshakeFailed)

	// ErrRecvFailed 表示在读取安全通道数据时发生错误。
	ErrRecvFailed = errors.New(ErrCodeRecvFailed)

	// ErrSendFailed 表示在发送数据到对端时发生错误。
	ErrSendFailed = errors.New(ErrCodeSendFailed)

	// ErrShutdownFailed 表示关闭连接时发生错误（通常会被忽略）。
	ErrShutdownFailed = errors.New(ErrCodeShutdownFailed)
)

var stageSentinels = map[Stage]error{
	StageAccept:    ErrAcceptFailed,
	StageHandshake: ErrHandshakeFailed,
	StageRecv:      ErrRecvFailed,
	StageSend:      ErrSendFailed,
	StageShutdown:  ErrShutdownFailed,
}

// StageError 是传递给 OnError 回调的错误类型，记录错误发生的阶段。
type StageError struct {
	Stage Stage
	Err   error
}

// NewStageError 构造一个 StageError，并将底层错误标记为该阶段对应的哨兵错误，
// 之后可以通过 errors.Is(err, ErrHandshakeFailed) 之类的方式判断阶段。
func NewStageError(stage Stage, err error) *StageError {
	if sentinel, ok := stageSentinels[stage]; ok && err != nil {
		err = errors.Mark(err, sentinel)
	}
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Code 返回该阶段对应的稳定错误码，未知阶段返回空字符串。
func (e *StageError) Code() string {
	if sentinel, ok := stageSentinels[e.Stage]; ok {
		return sentinel.Error()
	}
	return ""
}

// IsDisconnectError 判断 err 是否属于正常断开连接时产生的错误。
//
// 这类错误包括：对端关闭（EOF）、连接被中止/拒绝/重置、本端已关闭、
// 对端已 shutdown、操作被取消等。它们在回调中不应作为用户可见的错误上报。
func IsDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ESHUTDOWN):
		return true
	}
	return false
}

// Filter 应用断开类错误过滤：若 err 为正常断开错误则返回 nil，否则原样返回。
func Filter(err error) error {
	if IsDisconnectError(err) {
		return nil
	}
	return err
}
