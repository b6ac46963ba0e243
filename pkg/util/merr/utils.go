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
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Code 返回 err 对应的错误码，nil 返回 0。
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	if coded, ok := errors.Cause(err).(codedError); ok {
		return coded.code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return CanceledCode
	case errors.Is(err, context.DeadlineExceeded):
		return TimeoutCode
	default:
		return errUnexpected.code()
	}
}

// IsRetryableErr 判断 err 是否为可重试的错误码。
func IsRetryableErr(err error) bool {
	if coded, ok := errors.Cause(err).(codedError); ok {
		return coded.retriable
	}
	return false
}

func IsCanceledOrTimeout(err error) bool {
	return errors.IsAny(err, context.Canceled, context.DeadlineExceeded)
}

func WrapErrServiceInternal(reason string, msg ...string) error {
	return withMsg(wrapFieldsWithDesc(ErrServiceInternal, reason), msg)
}

func WrapErrServerNotStarted(address string, msg ...string) error {
	return withMsg(wrapFields(ErrServerNotStarted, value("address", address)), msg)
}

func WrapErrPortInUse(port int, msg ...string) error {
	return withMsg(wrapFields(ErrPortInUse, value("port", port)), msg)
}

func WrapErrSessionNotFound(id any, msg ...string) error {
	return withMsg(wrapFields(ErrSessionNotFound, value("session", id)), msg)
}

func WrapErrSessionDuplicated(id any, msg ...string) error {
	return withMsg(wrapFields(ErrSessionDuplicated, value("session", id)), msg)
}

// WrapErrCertificateInvalid 说明证书来源 source 因 reason 无法使用。
func WrapErrCertificateInvalid(source string, reason error) error {
	return wrapFieldsWithDesc(ErrCertificateInvalid, reason.Error(), value("source", source))
}

// WrapErrIoFailed 包装读写 key 时的错误，err 为 nil 时返回 nil。
func WrapErrIoFailed(key string, err error) error {
	if err == nil {
		return nil
	}
	return wrapFieldsWithDesc(ErrIoFailed, err.Error(), value("key", key))
}

func WrapErrParameterInvalid[T any](expected, actual T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterInvalid,
		value("expected", expected),
		value("actual", actual),
	), msg)
}

func WrapErrParameterInvalidMsg(fmt string, args ...any) error {
	return errors.Wrapf(ErrParameterInvalid, fmt, args...)
}

func WrapErrParameterMissing[T any](param T, msg ...string) error {
	return withMsg(wrapFields(ErrParameterMissing, value("missing_param", param)), msg)
}

func withMsg(err error, msg []string) error {
	if len(msg) == 0 {
		return err
	}
	return errors.Wrap(err, strings.Join(msg, "->"))
}

func wrapFields(err codedError, fields ...valueField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i])
	}
	err.detail = err.msg
	return err
}

func wrapFieldsWithDesc(err codedError, desc string, fields ...valueField) error {
	for i := range fields {
		err.msg += fmt.Sprintf("[%s]", fields[i])
	}
	err.msg += ": " + desc
	err.detail = err.msg
	return err
}

type valueField struct {
	name  string
	value any
}

func value(name string, v any) valueField {
	return valueField{name: name, value: v}
}

func (f valueField) String() string {
	return fmt.Sprintf("%s=%v", f.name, f.value)
}
