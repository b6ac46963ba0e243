package log

import (
	"net"

	"go.uber.org/zap"
)

const (
	FieldNameModule    = "module"
	FieldNameComponent = "component"
	FieldNameServerID  = "serverID"
	FieldNameSessionID = "sessionID"
	FieldNameRemote    = "remote"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldServerID 返回一个包含服务端 ID 的 zap 字段。
func FieldServerID(id string) zap.Field {
	return zap.String(FieldNameServerID, id)
}

// FieldSessionID 返回一个包含会话 ID 的 zap 字段。
func FieldSessionID(id string) zap.Field {
	return zap.String(FieldNameSessionID, id)
}

// FieldRemote 返回一个包含对端地址的 zap 字段，addr 为 nil 时记录为空字符串。
func FieldRemote(addr net.Addr) zap.Field {
	if addr == nil {
		return zap.String(FieldNameRemote, "")
	}
	return zap.String(FieldNameRemote, addr.String())
}
