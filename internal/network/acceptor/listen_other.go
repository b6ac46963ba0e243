//go:build !linux

package acceptor

import (
	"context"
	"net"

	"github.com/cockroachdb/errors"
)

// listen 在非 Linux 平台上使用标准库创建监听套接字。
//
// Backlog 由系统决定；Go 在类 Unix 平台上默认开启 SO_REUSEADDR。
func listen(address string, cfg Config) (net.Listener, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, errors.Wrapf(err, "split %s", address)
	}

	network := "tcp4"
	ip := net.ParseIP(host)
	switch {
	case cfg.DualMode:
		network = "tcp"
		if host == "" || (ip != nil && ip.IsUnspecified()) {
			address = net.JoinHostPort("::", port)
		}
	case ip != nil && ip.To4() == nil:
		network = "tcp6"
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), network, address)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", address)
	}
	return ln, nil
}
