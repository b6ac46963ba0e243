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

package log

import (
	"sync/atomic"

	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
)

// MLogger 在 zap.Logger 之上增加限流输出。
//
// 未通过 WithRateGroup 绑定分组时，RatedXXX 使用全局限流器。
type MLogger struct {
	*zap.Logger
	rl atomic.Value // limiterBox
}

// With 返回携带 fields 的子 Logger，限流分组随之继承。
func (l *MLogger) With(fields ...zap.Field) *MLogger {
	nl := &MLogger{Logger: l.Logger.With(fields...)}
	if rl := l.rl.Load(); rl != nil {
		nl.rl.Store(rl)
	}
	return nl
}

// WithRateGroup 将 Logger 绑定到名为 groupName 的限流分组。
// 分组已存在时更新其参数并复用。
func (l *MLogger) WithRateGroup(groupName string, creditPerSecond, maxBalance float64) *MLogger {
	rl := utils.NewRateLimiter(creditPerSecond, maxBalance)
	if actual, loaded := _namedRateLimiters.LoadOrStore(groupName, rl); loaded {
		rl = actual.(*utils.ReconfigurableRateLimiter)
		rl.Update(creditPerSecond, maxBalance)
	}
	l.rl.Store(limiterBox{rl})
	return l
}

func (l *MLogger) r() RateLimiter {
	if box, ok := l.rl.Load().(limiterBox); ok && box.RateLimiter != nil {
		return box.RateLimiter
	}
	return R()
}

func (l *MLogger) rated(cost float64) *zap.Logger {
	if !l.r().CheckCredit(cost) {
		return nil
	}
	return l.WithOptions(zap.AddCallerSkip(1))
}

// RatedDebug 限流通过时输出 Debug 日志并返回 true。
func (l *MLogger) RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	if lg := l.rated(cost); lg != nil {
		lg.Debug(msg, fields...)
		return true
	}
	return false
}

// RatedInfo 限流通过时输出 Info 日志并返回 true。
func (l *MLogger) RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	if lg := l.rated(cost); lg != nil {
		lg.Info(msg, fields...)
		return true
	}
	return false
}

// RatedWarn 限流通过时输出 Warn 日志并返回 true。
func (l *MLogger) RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	if lg := l.rated(cost); lg != nil {
		lg.Warn(msg, fields...)
		return true
	}
	return false
}

// RatedError 限流通过时输出 Error 日志并返回 true。
// 接受循环等持续失败的路径使用它避免刷屏。
func (l *MLogger) RatedError(cost float64, msg string, fields ...zap.Field) bool {
	if lg := l.rated(cost); lg != nil {
		lg.Error(msg, fields...)
		return true
	}
	return false
}
