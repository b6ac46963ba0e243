// Copyright (C) 2019-2020 Zilliz. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License
// is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express
// or implied. See the License for the specific language governing permissions and limitations under the License.

package retry

import (
	"context"
	"runtime"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
)

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	return file + ":" + strconv.Itoa(line)
}

// Do 执行 fn，失败时按指数退避重试。
//
// 每次失败后休眠时间翻倍，直到 MaxSleepTime；attempts 为 0 表示不限次数，直到 ctx 结束。
// 以下情况立即返回而不再重试：fn 返回经 Unrecoverable 包装的错误；RetryErr
// 判定不可重试；ctx 的剩余时间不足一次休眠。
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c := newDefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	logger := log.Ctx(ctx).With(zap.String("caller", getCaller(2)))

	var lastErr error
	for i := uint(0); c.attempts == 0 || i < c.attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if i%4 == 0 {
			logger.Warn("retry func failed", zap.Uint("retried", i), zap.Error(err))
		}

		if !IsRecoverable(err) {
			logger.Warn("retry func failed, not recoverable", zap.Uint("retried", i))
			return preferLast(err, lastErr)
		}
		if c.isRetryErr != nil && !c.isRetryErr(err) {
			logger.Warn("retry func failed, not retryable", zap.Uint("retried", i))
			return err
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < c.sleep {
			logger.Warn("retry func failed, deadline", zap.Uint("retried", i))
			return preferLast(err, lastErr)
		}

		lastErr = err
		select {
		case <-time.After(c.sleep):
		case <-ctx.Done():
			logger.Warn("retry func failed, ctx done", zap.Uint("retried", i))
			return lastErr
		}

		c.sleep *= 2
		if c.sleep > c.maxSleepTime {
			c.sleep = c.maxSleepTime
		}
	}
	logger.Warn("retry func failed, reach max retry", zap.Uint("attempts", c.attempts))
	return lastErr
}

// preferLast 在 err 仅是上下文结束时返回上一次的业务错误。
func preferLast(err, lastErr error) error {
	if lastErr != nil && merr.IsCanceledOrTimeout(err) {
		return lastErr
	}
	return err
}

var errUnrecoverable = errors.New("unrecoverable error")

// Unrecoverable 标记 err 为不可恢复，Do 遇到后立即返回。
func Unrecoverable(err error) error {
	return merr.Combine(err, errUnrecoverable)
}

// IsRecoverable 判断 err 是否未被 Unrecoverable 标记。
func IsRecoverable(err error) bool {
	return !errors.Is(err, errUnrecoverable)
}
