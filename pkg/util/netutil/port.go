package netutil

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// PortType 为端口协议类型。
type PortType int

const (
	PortTCP PortType = iota
	PortUDP
)

func (t PortType) String() string {
	if t == PortUDP {
		return "udp"
	}
	return "tcp"
}

const statusListen = "LISTEN"

// PortInUse 判断本机是否已有套接字监听 port。
//
// TCP 只统计处于 LISTEN 状态的套接字；UDP 没有连接状态，任何绑定到该端口的套接字都算占用。
func PortInUse(ctx context.Context, port int, typ PortType) (bool, error) {
	if port <= 0 || port > 65535 {
		return false, errors.Newf("invalid port %d", port)
	}
	conns, err := psnet.ConnectionsWithContext(ctx, typ.String())
	if err != nil {
		return false, errors.Wrapf(err, "list %s sockets", typ)
	}
	return lo.ContainsBy(conns, func(c psnet.ConnectionStat) bool {
		if c.Laddr.Port != uint32(port) {
			return false
		}
		return typ == PortUDP || c.Status == statusListen
	}), nil
}
