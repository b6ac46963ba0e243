package application

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"strings"

	"github.com/lk2023060901/sslserver-go/internal/network/acceptor"
	"github.com/lk2023060901/sslserver-go/internal/network/sslcontext"
	zlog "github.com/lk2023060901/sslserver-go/pkg/log"
	"github.com/lk2023060901/sslserver-go/pkg/util/merr"
	zviper "github.com/lk2023060901/sslserver-go/pkg/util/viper"
)

// DefaultPort 为未配置地址时的监听端口。
const DefaultPort = 8800

// Config 为 sslserver 的完整配置。
//
// 示例：
//
//	server:
//	  address: 0.0.0.0:8800
//	  noDelay: true
//	tls:
//	  pfxFile: ./server.pfx
//	  pfxPassword: secret
//	admin:
//	  address: 127.0.0.1:9090
//	log:
//	  level: info
//	  stdout: true
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	TLS    TLSConfig    `mapstructure:"tls"`
	Admin  AdminConfig  `mapstructure:"admin"`
	Log    zlog.Config  `mapstructure:"log"`
}

// ServerConfig 为监听地址与服务端参数。
type ServerConfig struct {
	Address         string `mapstructure:"address"`
	acceptor.Config `mapstructure:",squash"`
}

// TLSConfig 描述证书来源，PFXFile 优先于 CertFile/KeyFile，二者都未配置时可以使用自签名证书。
type TLSConfig struct {
	CertFile          string   `mapstructure:"certFile"`
	KeyFile           string   `mapstructure:"keyFile"`
	PFXFile           string   `mapstructure:"pfxFile"`
	PFXPassword       string   `mapstructure:"pfxPassword"`
	SelfSigned        bool     `mapstructure:"selfSigned"`
	Hosts             []string `mapstructure:"hosts"`
	ClientCAFile      string   `mapstructure:"clientCAFile"`
	RequireClientCert bool     `mapstructure:"requireClientCert"`
	Protocols         []string `mapstructure:"protocols"`
}

// AdminConfig 为运维 HTTP 接口配置，Address 为空时不启动。
type AdminConfig struct {
	Address string `mapstructure:"address"`
}

func setDefaults(v *zviper.Config) {
	def := acceptor.DefaultConfig()
	v.SetDefault("server.address", ":8800")
	v.SetDefault("server.backlog", def.Backlog)
	v.SetDefault("server.receiveBufferSize", def.ReceiveBufferSize)
	v.SetDefault("server.sendBufferSize", def.SendBufferSize)
	v.SetDefault("server.shutdownTimeout", def.ShutdownTimeout.String())
	v.SetDefault("tls.protocols", []string{"1.2"})
	v.SetDefault("admin.address", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", zlog.FormatConsole)
	v.SetDefault("log.stdout", true)
	v.SetDefault("log.rateLimit.enable", false)
	v.SetDefault("log.rateLimit.creditPerSecond", 1.0)
	v.SetDefault("log.rateLimit.maxBalance", 60.0)
}

var protocolVersions = map[string]uint16{
	"1.0": tls.VersionTLS10,
	"1.1": tls.VersionTLS11,
	"1.2": tls.VersionTLS12,
	"1.3": tls.VersionTLS13,
}

// Build 根据配置创建安全上下文。使用自签名证书时同时返回 PEM 编码的证书，供客户端信任。
func (c TLSConfig) Build() (*sslcontext.Context, []byte, error) {
	var (
		ctx     *sslcontext.Context
		certPEM []byte
		err     error
	)
	switch {
	case c.PFXFile != "":
		ctx, err = sslcontext.LoadPKCS12(c.PFXFile, c.PFXPassword)
	case c.CertFile != "" && c.KeyFile != "":
		ctx, err = sslcontext.LoadX509KeyPair(c.CertFile, c.KeyFile)
	case c.SelfSigned:
		ctx, certPEM, err = sslcontext.SelfSigned(c.Hosts...)
	default:
		return nil, nil, merr.WrapErrParameterMissing("tls.pfxFile", "or tls.certFile/tls.keyFile, or tls.selfSigned")
	}
	if err != nil {
		return nil, nil, merr.WrapErrCertificateInvalid("tls", err)
	}

	if len(c.Protocols) > 0 {
		ctx.Protocols = ctx.Protocols[:0]
		for _, p := range c.Protocols {
			v, ok := protocolVersions[strings.TrimPrefix(strings.ToLower(p), "tls")]
			if !ok {
				return nil, nil, merr.WrapErrParameterInvalidMsg("unknown tls protocol %q", p)
			}
			ctx.Protocols = append(ctx.Protocols, v)
		}
	}

	if c.ClientCAFile != "" {
		data, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, nil, merr.WrapErrIoFailed(c.ClientCAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, nil, merr.WrapErrCertificateInvalid(c.ClientCAFile, merr.WrapErrParameterInvalidMsg("no certificate found"))
		}
		ctx.ClientCAs = pool
	}
	ctx.ClientCertificateRequired = c.RequireClientCert
	return ctx, certPEM, nil
}
