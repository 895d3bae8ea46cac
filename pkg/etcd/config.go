package etcd

import (
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config 连接模块配置中心所需的参数
type Config struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dialTimeout"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// 三个文件要么都给出，要么都不给
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
	CAFile   string `yaml:"caFile"`

	// Retries 读取失败后的重试次数，0 不重试
	Retries       uint64        `yaml:"retries"`
	RetryInterval time.Duration `yaml:"retryInterval"`
}

// DefaultConfig 本机单节点
func DefaultConfig() *Config {
	return &Config{
		Endpoints:     []string{"localhost:2379"},
		DialTimeout:   5 * time.Second,
		Retries:       2,
		RetryInterval: 200 * time.Millisecond,
	}
}

// ApplyDefaults 补齐零值字段，配置文件中只写 endpoints 即可
func (c *Config) ApplyDefaults() {
	def := DefaultConfig()
	if len(c.Endpoints) == 0 {
		c.Endpoints = def.Endpoints
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
}

// Validate 检查必填项与 TLS 文件是否成组
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return errors.Wrap(ErrInvalidConfig, "endpoints cannot be empty")
	}
	if c.DialTimeout <= 0 {
		return errors.Wrap(ErrInvalidConfig, "dial timeout must be positive")
	}
	tlsFiles := 0
	for _, f := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if f != "" {
			tlsFiles++
		}
	}
	if tlsFiles != 0 && tlsFiles != 3 {
		return errors.Wrap(ErrInvalidConfig, "certFile, keyFile and caFile must be set together")
	}
	return nil
}

func (c *Config) clientConfig() (clientv3.Config, error) {
	out := clientv3.Config{
		Endpoints:        c.Endpoints,
		DialTimeout:      c.DialTimeout,
		RejectOldCluster: true,
		Username:         c.Username,
		Password:         c.Password,
		// etcd 自带 resolver，关闭 gRPC 的服务配置解析
		DialOptions: []grpc.DialOption{grpc.WithDisableServiceConfig()},
	}
	if c.CertFile == "" {
		out.DialOptions = append(out.DialOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
		return out, nil
	}

	tlsCfg, err := c.tlsConfig()
	if err != nil {
		return clientv3.Config{}, err
	}
	out.TLS = tlsCfg
	return out, nil
}

func (c *Config) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "etcd: load client cert")
	}
	caPEM, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, errors.Wrap(err, "etcd: read ca file")
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(caPEM) {
		return nil, errors.Newf("etcd: no certificates in %s", c.CAFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
