package application

import (
	"os"

	"github.com/cockroachdb/errors"

	zlog "github.com/lk2023060901/sslserver-go/pkg/log"
	zviper "github.com/lk2023060901/sslserver-go/pkg/util/viper"
)

const (
	// ConfigPathEnv 指定配置文件路径的环境变量。
	ConfigPathEnv = "SSLSERVER_CONFIG_FILE_PATH"
	// EnvPrefix 为配置项环境变量前缀，例如 SSLSERVER_SERVER_ADDRESS。
	EnvPrefix = "SSLSERVER"

	defaultConfigPath = "./config.yaml"
)

// Application 是 sslserver 的运行时容器，负责加载配置并初始化日志。
type Application struct {
	path    string
	raw     *zviper.Config
	cfg     Config
	loggers map[string]*zlog.MLogger
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Load 按以下优先级确定配置文件路径并加载：
//  1. 参数 path（通常来自 --config）
//  2. 环境变量 SSLSERVER_CONFIG_FILE_PATH
//  3. 默认值 ./config.yaml
//
// 只有使用默认路径且文件不存在时才允许以纯默认值运行。
func (a *Application) Load(path string) error {
	explicit := true
	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path == "" {
		path = defaultConfigPath
		explicit = false
	}

	raw := zviper.New()
	raw.BindEnv(EnvPrefix)
	setDefaults(raw)

	if _, err := os.Stat(path); err == nil || explicit {
		if err := raw.LoadFile(path); err != nil {
			return errors.Wrapf(err, "failed to load config file %q", path)
		}
		a.path = path
	}

	var cfg Config
	if err := raw.Unmarshal(&cfg); err != nil {
		return errors.Wrap(err, "decode config")
	}
	a.raw = raw
	a.cfg = cfg

	return a.initLogging()
}

// Config returns the loaded configuration.
func (a *Application) Config() Config {
	return a.cfg
}

// ConfigFile 返回实际加载的配置文件路径，使用纯默认值时为空。
func (a *Application) ConfigFile() string {
	return a.path
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return zlog.With(zlog.FieldModule(name))
}

// initLogging initializes global and module-level loggers.
func (a *Application) initLogging() error {
	if err := zlog.SetupGlobal(&a.cfg.Log); err != nil {
		return errors.Wrap(err, "init global logger")
	}
	return a.initModuleLoggersFromConfig()
}

// initModuleLoggersFromConfig creates named loggers from YAML config under "logging" key.
//
// Example:
//
//	logging:
//	  server:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: server.log
func (a *Application) initModuleLoggersFromConfig() error {
	raw := make(map[string]zlog.Config)
	if err := a.raw.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		if cfgCopy.Level == "" {
			cfgCopy.Level = a.cfg.Log.Level
		}
		if !cfgCopy.Stdout && cfgCopy.File.Filename == "" {
			cfgCopy.Stdout = true
		}
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return errors.Wrapf(err, "init module logger %q", name)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger.With(zlog.FieldModule(name))}
	}
	return nil
}
