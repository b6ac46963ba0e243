package main

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/sslserver-go/application"
	"github.com/lk2023060901/sslserver-go/internal/network/acceptor"
	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
)

func TestApplyFlags(t *testing.T) {
	cmd := serveCmd(new(string))
	require.NoError(t, cmd.Flags().Parse([]string{"--address", "127.0.0.1:9000", "--self-signed", "--admin", ":9090"}))

	cfg := application.Config{}
	cfg.TLS.CertFile = "keep.pem"
	var flags serveFlags
	flags.address, _ = cmd.Flags().GetString("address")
	flags.selfSigned, _ = cmd.Flags().GetBool("self-signed")
	flags.adminAddress, _ = cmd.Flags().GetString("admin")
	applyFlags(cmd, &flags, &cfg)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	assert.True(t, cfg.TLS.SelfSigned)
	assert.Equal(t, ":9090", cfg.Admin.Address)
	assert.Equal(t, "keep.pem", cfg.TLS.CertFile)
}

func TestCheckPort(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	assert.ErrorIs(t, checkPort(ctx, "no-port"), merr.ErrParameterInvalid)
	assert.NoError(t, checkPort(ctx, "127.0.0.1:0"))
}

func TestReadCommands(t *testing.T) {
	out := make(chan string, 4)
	readCommands(strings.NewReader(" restart \nstop\n"), out)

	var got []string
	for line := range out {
		got = append(got, line)
	}
	assert.Equal(t, []string{"restart", "stop"}, got)
}

func TestEchoServerAndAdmin(t *testing.T) {
	sslCtx, certPEM, err := sslcontext.SelfSigned("localhost")
	require.NoError(t, err)

	srv, err := newEchoServer(sslCtx, "127.0.0.1:0", acceptor.DefaultConfig(), nil)
	require.NoError(t, err)
	defer srv.Close()
	require.True(t, srv.Start())

	clientCfg, err := sslcontext.ClientConfig(certPEM, "localhost")
	require.NoError(t, err)
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 5 * time.Second}, "tcp", srv.Endpoint().String(), clientCfg)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	api := httptest.NewServer(newAdminHandler(srv))
	defer api.Close()

	resp, err := http.Get(api.URL + "/stats")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var st stats
	require.NoError(t, sonic.Unmarshal(body, &st))
	assert.True(t, st.Started)
	assert.Equal(t, srv.ID().String(), st.ID)
	assert.Equal(t, 1, st.ConnectedSessions)
	assert.EqualValues(t, 5, st.BytesReceived)

	resp, err = http.Get(api.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "sslserver_server_bytes_received")
}
