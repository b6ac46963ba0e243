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

package merr

import (
	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

const (
	CanceledCode int32 = 10000
	TimeoutCode  int32 = 10001
)

// 叶子错误定义在这里，新增之前先确认现有错误是否可以复用。
// 命名规则：Err + 领域前缀 + 错误名。
var (
	// Service
	ErrServiceInternal = newCodedError("service internal error", 5, false)

	// Server
	ErrServerNotStarted = newCodedError("server not started", 101, false)
	ErrPortInUse        = newCodedError("port already in use", 103, true)

	// Session
	ErrSessionNotFound   = newCodedError("session not found", 200, false)
	ErrSessionDuplicated = newCodedError("session already registered", 201, false)

	// Certificate
	ErrCertificateInvalid = newCodedError("invalid certificate", 300, false)

	// IO
	ErrIoFailed = newCodedError("IO failed", 1001, false)

	// Parameter
	ErrParameterInvalid = newCodedError("invalid parameter", 1100, false)
	ErrParameterMissing = newCodedError("missing parameter", 1101, false)

	// 仅用于把未知错误映射为错误码，不要导出
	errUnexpected = newCodedError("unexpected error", (1<<16)-1, false)
)

// codedError 是带错误码的叶子错误，错误码相同即视为同一错误。
type codedError struct {
	msg       string
	detail    string
	retriable bool
	errCode   int32
}

func newCodedError(msg string, code int32, retriable bool) codedError {
	return codedError{
		msg:       msg,
		detail:    msg,
		retriable: retriable,
		errCode:   code,
	}
}

func (e codedError) code() int32 {
	return e.errCode
}

func (e codedError) Error() string {
	return e.msg
}

// Detail 返回附带了上下文字段的完整描述。
func (e codedError) Detail() string {
	return e.detail
}

func (e codedError) Is(err error) bool {
	if cause, ok := errors.Cause(err).(codedError); ok {
		return e.errCode == cause.errCode
	}
	return false
}

type multiErrors struct {
	errs []error
}

// Unwrap 返回除第一个错误外的剩余部分，使 Cause 落到最后一个错误上。
func (e multiErrors) Unwrap() error {
	switch len(e.errs) {
	case 0, 1:
		return nil
	case 2:
		return e.errs[1]
	default:
		return multiErrors{errs: e.errs[1:]}
	}
}

func (e multiErrors) Error() string {
	final := e.errs[0]
	for i := 1; i < len(e.errs); i++ {
		final = errors.Wrap(e.errs[i], final.Error())
	}
	return final.Error()
}

func (e multiErrors) Is(err error) bool {
	return lo.ContainsBy(e.errs, func(item error) bool { return errors.Is(item, err) })
}

// Combine 将多个错误合并为一个，nil 会被忽略，全部为 nil 时返回 nil。
func Combine(errs ...error) error {
	errs = lo.Filter(errs, func(err error, _ int) bool { return err != nil })
	if len(errs) == 0 {
		return nil
	}
	return multiErrors{errs: errs}
}
