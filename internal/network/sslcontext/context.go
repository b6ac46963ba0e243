// Package sslcontext 描述 TLS 服务端的安全上下文。
//
// Context 在服务端启动前由调用方构造，启动后视为只读，所有会话共享同一份配置。
package sslcontext

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/pkcs12"
)

// VerifyFunc 是对端证书校验回调。
//
// rawCerts 为对端提供的原始证书链，verifiedChains 在 ClientCAs 已配置并通过
// 标准校验后才会非空。返回非 nil 错误将导致握手失败。
type VerifyFunc func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error

// Context 是 TLS 服务端的安全上下文。
type Context struct {
	// Protocols 为允许协商的 TLS 版本集合，为空时默认仅允许 TLS 1.2。
	Protocols []uint16

	// Certificates 为服务端证书，至少需要一张。
	Certificates []tls.Certificate

	// ClientCertificateRequired 为 true 时要求客户端提供证书。
	ClientCertificateRequired bool

	// ClientCAs 用于校验客户端证书，为空时只依赖 VerifyPeerCertificate。
	ClientCAs *x509.CertPool

	// VerifyPeerCertificate 为可选的对端证书校验回调。
	VerifyPeerCertificate VerifyFunc

	once   sync.Once
	config *tls.Config
	err    error
}

// New 创建一个使用默认协议集合的 Context。
func New(certs ...tls.Certificate) *Context {
	return &Context{
		Protocols:    []uint16{tls.VersionTLS12},
		Certificates: certs,
	}
}

// NewWithVerifier 创建一个带对端证书校验回调的 Context。
func NewWithVerifier(verify VerifyFunc, certs ...tls.Certificate) *Context {
	c := New(certs...)
	c.VerifyPeerCertificate = verify
	return c
}

// LoadX509KeyPair 从 PEM 格式的证书和私钥文件创建 Context。
func LoadX509KeyPair(certFile, keyFile string) (*Context, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, errors.Wrapf(err, "load key pair %s/%s", certFile, keyFile)
	}
	return New(cert), nil
}

// FromPEM 从内存中的 PEM 数据创建 Context。
func FromPEM(certPEM, keyPEM []byte) (*Context, error) {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "parse key pair")
	}
	return New(cert), nil
}

// LoadPKCS12 从 PKCS#12（.pfx/.p12）文件和密码创建 Context。
func LoadPKCS12(path, password string) (*Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read pkcs12 %s", path)
	}
	return FromPKCS12(data, password)
}

// FromPKCS12 从内存中的 PKCS#12 数据创建 Context。
func FromPKCS12(data []byte, password string) (*Context, error) {
	key, leaf, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, errors.Wrap(err, "decode pkcs12")
	}
	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	return New(cert), nil
}

// TLSConfig 返回服务端使用的 tls.Config，只在第一次调用时构建。
func (c *Context) TLSConfig() (*tls.Config, error) {
	c.once.Do(func() {
		c.config, c.err = c.build()
	})
	return c.config, c.err
}

func (c *Context) build() (*tls.Config, error) {
	if len(c.Certificates) == 0 {
		return nil, errors.New("sslcontext: no server certificate")
	}

	protocols := c.Protocols
	if len(protocols) == 0 {
		protocols = []uint16{tls.VersionTLS12}
	}
	minVersion, maxVersion := protocols[0], protocols[0]
	for _, v := range protocols[1:] {
		if v < minVersion {
			minVersion = v
		}
		if v > maxVersion {
			maxVersion = v
		}
	}

	cfg := &tls.Config{
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
		Certificates: c.Certificates,
		ClientCAs:    c.ClientCAs,
	}

	switch {
	case c.ClientCertificateRequired && c.ClientCAs != nil:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	case c.ClientCertificateRequired:
		cfg.ClientAuth = tls.RequireAnyClientCert
	case c.ClientCAs != nil:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case c.VerifyPeerCertificate != nil:
		cfg.ClientAuth = tls.RequestClientCert
	default:
		cfg.ClientAuth = tls.NoClientCert
	}

	if c.VerifyPeerCertificate != nil {
		cfg.VerifyPeerCertificate = c.VerifyPeerCertificate
	}
	return cfg, nil
}
