package application

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
)

type ApplicationSuite struct {
	suite.Suite
	dir string
}

func (s *ApplicationSuite) SetupTest() {
	s.dir = s.T().TempDir()
}

func (s *ApplicationSuite) write(name, content string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (s *ApplicationSuite) TestLoadExplicit() {
	path := s.write("server.yaml", `
server:
  address: 127.0.0.1:9443
  backlog: 128
  noDelay: true
  shutdownTimeout: 3s
tls:
  selfSigned: true
  protocols: ["1.2", "tls1.3"]
admin:
  address: 127.0.0.1:9090
log:
  level: debug
  rateLimit:
    enable: true
    maxBalance: 10
logging:
  server:
    level: warn
`)
	app := New()
	s.Require().NoError(app.Load(path))
	s.Equal(path, app.ConfigFile())

	cfg := app.Config()
	s.Equal("127.0.0.1:9443", cfg.Server.Address)
	s.Equal(128, cfg.Server.Backlog)
	s.True(cfg.Server.NoDelay)
	s.Equal(3*time.Second, cfg.Server.ShutdownTimeout)
	s.Equal(8192, cfg.Server.ReceiveBufferSize)
	s.True(cfg.TLS.SelfSigned)
	s.Equal("127.0.0.1:9090", cfg.Admin.Address)
	s.Equal("debug", cfg.Log.Level)
	s.True(cfg.Log.RateLimit.Enable)
	s.Equal(1.0, cfg.Log.RateLimit.CreditPerSecond)
	s.Equal(10.0, cfg.Log.RateLimit.MaxBalance)

	s.NotNil(app.Logger("server"))
	s.NotNil(app.Logger("unknown"))

	ctx, certPEM, err := cfg.TLS.Build()
	s.Require().NoError(err)
	s.NotEmpty(certPEM)
	s.Equal([]uint16{tls.VersionTLS12, tls.VersionTLS13}, ctx.Protocols)
}

func (s *ApplicationSuite) TestLoadFromEnv() {
	path := s.write("env.yaml", "server:\n  address: 127.0.0.1:1\n")
	s.T().Setenv(ConfigPathEnv, path)
	s.T().Setenv("SSLSERVER_SERVER_ADDRESS", "127.0.0.1:2")

	app := New()
	s.Require().NoError(app.Load(""))
	s.Equal(path, app.ConfigFile())
	s.Equal("127.0.0.1:2", app.Config().Server.Address)
}

func (s *ApplicationSuite) TestLoadDefaults() {
	wd, err := os.Getwd()
	s.Require().NoError(err)
	s.Require().NoError(os.Chdir(s.dir))
	defer func() { _ = os.Chdir(wd) }()
	s.T().Setenv(ConfigPathEnv, "")

	app := New()
	s.Require().NoError(app.Load(""))
	s.Empty(app.ConfigFile())
	s.Equal(":8800", app.Config().Server.Address)
	s.Equal(1024, app.Config().Server.Backlog)
	s.Equal(time.Second, app.Config().Server.ShutdownTimeout)
}

func (s *ApplicationSuite) TestLoadMissingExplicit() {
	s.Error(New().Load(filepath.Join(s.dir, "absent.yaml")))
}

func (s *ApplicationSuite) TestBuildErrors() {
	_, _, err := TLSConfig{}.Build()
	s.ErrorIs(err, merr.ErrParameterMissing)

	_, _, err = TLSConfig{PFXFile: filepath.Join(s.dir, "absent.pfx")}.Build()
	s.ErrorIs(err, merr.ErrCertificateInvalid)

	_, _, err = TLSConfig{SelfSigned: true, Protocols: []string{"9.9"}}.Build()
	s.ErrorIs(err, merr.ErrParameterInvalid)

	bad := s.write("ca.pem", "not a pem")
	_, _, err = TLSConfig{SelfSigned: true, ClientCAFile: bad}.Build()
	s.ErrorIs(err, merr.ErrCertificateInvalid)
}

func (s *ApplicationSuite) TestBuildClientCA() {
	_, certPEM, err := sslcontext.SelfSigned("localhost")
	s.Require().NoError(err)
	ca := s.write("ca.pem", string(certPEM))

	ctx, _, err := TLSConfig{SelfSigned: true, ClientCAFile: ca, RequireClientCert: true}.Build()
	s.Require().NoError(err)
	s.NotNil(ctx.ClientCAs)
	s.True(ctx.ClientCertificateRequired)

	cfg, err := ctx.TLSConfig()
	s.Require().NoError(err)
	s.Equal(tls.RequireAndVerifyClientCert, cfg.ClientAuth)
}

func TestApplication(t *testing.T) {
	suite.Run(t, new(ApplicationSuite))
}
