package main

import (
	"bufio"
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/sslserver-go/application"
	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
	"github.com/lk2023060901/sslserver-go/pkg/util/netutil"
	"github.com/lk2023060901/sslserver-go/pkg/util/retry"
)

type serveFlags struct {
	address      string
	pfxFile      string
	pfxPassword  string
	certFile     string
	keyFile      string
	selfSigned   bool
	certOut      string
	adminAddress string
}

func serveCmd(configPath *string) *cobra.Command {
	var flags serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the TLS echo server",
		Long: `Start the TLS echo server.

Commands read from stdin:
  stop     stop the server and exit
  restart  restart the server`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := application.New()
			if err := app.Load(*configPath); err != nil {
				return err
			}
			defer log.Sync()

			cfg := app.Config()
			applyFlags(cmd, &flags, &cfg)
			return serve(cmd.Context(), app, cfg, flags.certOut, cmd.InOrStdin())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.address, "address", "a", "", "listen address, e.g. 0.0.0.0:8800")
	f.StringVar(&flags.pfxFile, "pfx", "", "PKCS#12 certificate file")
	f.StringVar(&flags.pfxPassword, "pfx-password", "", "PKCS#12 password")
	f.StringVar(&flags.certFile, "cert", "", "PEM certificate file")
	f.StringVar(&flags.keyFile, "key", "", "PEM private key file")
	f.BoolVar(&flags.selfSigned, "self-signed", false, "use an in-memory self-signed certificate")
	f.StringVar(&flags.certOut, "cert-out", "", "write the self-signed certificate to this file")
	f.StringVar(&flags.adminAddress, "admin", "", "admin http address serving /metrics and /stats")
	return cmd
}

// applyFlags 用显式指定的命令行参数覆盖配置文件。
func applyFlags(cmd *cobra.Command, flags *serveFlags, cfg *application.Config) {
	changed := cmd.Flags().Changed
	if changed("address") {
		cfg.Server.Address = flags.address
	}
	if changed("pfx") {
		cfg.TLS.PFXFile = flags.pfxFile
	}
	if changed("pfx-password") {
		cfg.TLS.PFXPassword = flags.pfxPassword
	}
	if changed("cert") {
		cfg.TLS.CertFile = flags.certFile
	}
	if changed("key") {
		cfg.TLS.KeyFile = flags.keyFile
	}
	if changed("self-signed") {
		cfg.TLS.SelfSigned = flags.selfSigned
	}
	if changed("admin") {
		cfg.Admin.Address = flags.adminAddress
	}
}

// checkPort 在启动前确认端口未被占用，端口为 0 时跳过。
func checkPort(ctx context.Context, address string) error {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return merr.WrapErrParameterInvalidMsg("invalid address %q", address)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return nil
	}
	inUse, err := netutil.PortInUse(ctx, port, netutil.PortTCP)
	if err != nil {
		log.Ctx(ctx).Warn("port check failed", zap.Int("port", port), zap.Error(err))
		return nil
	}
	if inUse {
		return merr.WrapErrPortInUse(port)
	}
	return nil
}

func serve(ctx context.Context, app *application.Application, cfg application.Config, certOut string, stdin io.Reader) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, span := log.NewIntentContext(ctx, "sslserver", "serve")
	defer span.End()
	logger := log.Ctx(ctx)

	if err := checkPort(ctx, cfg.Server.Address); err != nil {
		return err
	}

	sslCtx, certPEM, err := cfg.TLS.Build()
	if err != nil {
		return err
	}
	if certOut != "" && len(certPEM) > 0 {
		if err := os.WriteFile(certOut, certPEM, 0o644); err != nil {
			return merr.WrapErrIoFailed(certOut, err)
		}
		logger.Info("self-signed certificate written", zap.String("path", certOut))
	}

	srv, err := newEchoServer(sslCtx, cfg.Server.Address, cfg.Server.Config, app.Logger("server"))
	if err != nil {
		return err
	}
	defer srv.Close()

	// 端口被占用可重试，其它启动失败直接返回
	start := func() error {
		if srv.Start() {
			return nil
		}
		if err := checkPort(ctx, cfg.Server.Address); err != nil {
			return err
		}
		return merr.WrapErrServerNotStarted(cfg.Server.Address)
	}
	startOpts := []retry.Option{
		retry.Attempts(5),
		retry.Sleep(200 * time.Millisecond),
		retry.MaxSleepTime(2 * time.Second),
		retry.RetryErr(merr.IsRetryableErr),
	}
	if err := retry.Do(ctx, start, startOpts...); err != nil {
		return err
	}
	logger.Info("server started, type 'stop' to stop or 'restart' to restart",
		zap.Stringer("endpoint", srv.Endpoint()))

	commands := make(chan string)
	go readCommands(stdin, commands)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Admin.Address != "" {
		g.Go(func() error {
			return serveAdmin(gctx, cfg.Admin.Address, srv)
		})
	}
	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-commands:
				if !ok {
					// 标准输入已关闭，只等待信号
					commands = nil
					continue
				}
				if line == "stop" {
					return nil
				}
				if line != "restart" {
					continue
				}
				logger.Info("restarting server")
				if srv.IsStarted() && !srv.Stop() {
					return merr.WrapErrServiceInternal("stop in progress", "restart")
				}
				err := retry.Do(gctx, start, startOpts...)
				if err != nil {
					return errors.Wrap(err, "restart")
				}
				logger.Info("server restarted", zap.Stringer("endpoint", srv.Endpoint()))
			}
		}
	})

	err = g.Wait()
	logger.Info("stopping server")
	srv.Stop()
	logger.Info("server stopped")
	return err
}

// readCommands 逐行读取控制台命令，输入结束时关闭 out。
func readCommands(r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}
