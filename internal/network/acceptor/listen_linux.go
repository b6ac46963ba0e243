//go:build linux

package acceptor

import (
	"net"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// listen 通过系统调用创建监听套接字，以便控制 SO_REUSEADDR、IPV6_V6ONLY 与 backlog。
func listen(address string, cfg Config) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", address)
	}
	family, sa, err := sockaddr(addr, cfg.DualMode)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	owned := true
	defer func() {
		if owned {
			_ = unix.Close(fd)
		}
	}()

	if cfg.ReuseAddress {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return nil, os.NewSyscallError("setsockopt", err)
		}
	}
	if family == unix.AF_INET6 {
		v6only := 1
		if cfg.DualMode {
			v6only = 0
		}
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, v6only); err != nil {
			return nil, os.NewSyscallError("setsockopt", err)
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, cfg.Backlog); err != nil {
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener 会复制 fd，原始 fd 随 f 一起关闭
	f := os.NewFile(uintptr(fd), "tcp:"+address)
	owned = false
	defer f.Close()

	ln, err := net.FileListener(f)
	if err != nil {
		return nil, errors.Wrap(err, "file listener")
	}
	return ln, nil
}

func sockaddr(addr *net.TCPAddr, dualMode bool) (int, unix.Sockaddr, error) {
	ip := addr.IP
	if !dualMode && (len(ip) == 0 || ip.To4() != nil) {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 := ip.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return unix.AF_INET, sa, nil
	}

	sa := &unix.SockaddrInet6{Port: addr.Port}
	if len(ip) != 0 && !ip.IsUnspecified() {
		// IPv4 地址在双栈模式下映射为 ::ffff:a.b.c.d
		copy(sa.Addr[:], ip.To16())
	}
	if addr.Zone != "" {
		ifi, err := net.InterfaceByName(addr.Zone)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "zone %s", addr.Zone)
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return unix.AF_INET6, sa, nil
}
