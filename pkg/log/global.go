// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxLogKeyType struct{}

// CtxLogKey 为 ctx 中保存 *MLogger 使用的键。
var CtxLogKey = ctxLogKeyType{}

// Debug 使用全局 Logger 输出 Debug 日志。
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info 使用全局 Logger 输出 Info 日志。
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn 使用全局 Logger 输出 Warn 日志。
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error 使用全局 Logger 输出 Error 日志。
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// Fatal 输出日志后退出进程。
func Fatal(msg string, fields ...zap.Field) {
	L().Fatal(msg, fields...)
}

// ratedL 额外跳过 rated 这一层调用栈。
func ratedL() *zap.Logger {
	return L().WithOptions(zap.AddCallerSkip(1))
}

func rated(cost float64, write func(string, ...zap.Field), msg string, fields []zap.Field) bool {
	if !R().CheckCredit(cost) {
		return false
	}
	write(msg, fields...)
	return true
}

// RatedDebug 经全局限流器放行后输出 Debug 日志，返回是否输出。
func RatedDebug(cost float64, msg string, fields ...zap.Field) bool {
	return rated(cost, ratedL().Debug, msg, fields)
}

// RatedInfo 经全局限流器放行后输出 Info 日志，返回是否输出。
func RatedInfo(cost float64, msg string, fields ...zap.Field) bool {
	return rated(cost, ratedL().Info, msg, fields)
}

// RatedWarn 经全局限流器放行后输出 Warn 日志，返回是否输出。
func RatedWarn(cost float64, msg string, fields ...zap.Field) bool {
	return rated(cost, ratedL().Warn, msg, fields)
}

// With 基于全局 Logger 创建携带 fields 的子 Logger。
func With(fields ...zap.Field) *MLogger {
	return &MLogger{
		Logger: L().With(fields...).WithOptions(zap.AddCallerSkip(-1)),
	}
}

// SetLevel 设置全局日志级别。
func SetLevel(l zapcore.Level) {
	_globalP.Load().(*ZapProperties).Level.SetLevel(l)
}

// GetLevel 返回全局日志级别。
func GetLevel() zapcore.Level {
	return _globalP.Load().(*ZapProperties).Level.Level()
}

// WithTraceID 返回一个日志中携带 traceID 的上下文。
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return WithFields(ctx, zap.String("traceID", traceID))
}

// WithModule 返回一个日志中携带模块名的上下文。
func WithModule(ctx context.Context, module string) context.Context {
	return WithFields(ctx, FieldModule(module))
}

// WithFields 返回一个日志中附加 fields 的上下文，ctx 中已有的字段会保留。
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	base := ctxL()
	if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
		base = l.Logger
	}
	return context.WithValue(ctx, CtxLogKey, &MLogger{Logger: base.With(fields...)})
}

// NewIntentContext 开启一个名为 intent 的 span，返回的上下文中 Logger 携带
// role、intent 与 traceID 字段。调用方负责结束 span。
func NewIntentContext(ctx context.Context, role, intent string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	intentCtx, span := otel.Tracer(role).Start(ctx, intent)
	intentCtx = WithFields(intentCtx,
		zap.String("role", role),
		zap.String("intent", intent),
		zap.String("traceID", span.SpanContext().TraceID().String()))
	return intentCtx, span
}

// Ctx 返回 ctx 中携带的 Logger，没有时返回全局 Logger。
func Ctx(ctx context.Context) *MLogger {
	if ctx != nil {
		if l, ok := ctx.Value(CtxLogKey).(*MLogger); ok {
			return l
		}
	}
	return &MLogger{Logger: ctxL()}
}
