package main

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lk2023060901/sslserver-go/internal/network/acceptor"
	"github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/metrics"
	"github.com/lk2023060901/sslserver-go/pkg/version"
)

// stats 为 /stats 接口的返回值。
type stats struct {
	ID                string       `json:"id"`
	Endpoint          string       `json:"endpoint"`
	Started           bool         `json:"started"`
	ConnectedSessions int          `json:"connectedSessions"`
	BytesSent         int64        `json:"bytesSent"`
	BytesReceived     int64        `json:"bytesReceived"`
	BytesPending      int64        `json:"bytesPending"`
	Version           version.Info `json:"version"`
}

func collectStats(srv *acceptor.Server) stats {
	st := stats{
		ID:                srv.ID().String(),
		Started:           srv.IsStarted(),
		ConnectedSessions: srv.ConnectedSessions(),
		BytesSent:         srv.BytesSent(),
		BytesReceived:     srv.BytesReceived(),
		BytesPending:      srv.BytesPending(),
		Version:           version.Get(),
	}
	if ep := srv.Endpoint(); ep != nil {
		st.Endpoint = ep.String()
	}
	return st
}

// newAdminHandler 返回运维接口：/metrics 导出 Prometheus 指标，/stats 以 JSON 返回服务端计数。
func newAdminHandler(srv *acceptor.Server) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		srv.Collector(),
	)
	metrics.Register(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		body, err := sonic.Marshal(collectStats(srv))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
	return mux
}

// serveAdmin 运行运维 HTTP 服务直到 ctx 取消。
func serveAdmin(ctx context.Context, address string, srv *acceptor.Server) error {
	hs := &http.Server{
		Addr:              address,
		Handler:           newAdminHandler(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("admin server listening", zap.String("address", address))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "admin server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(shutdownCtx)
	}
}
