package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

const configDirName = ".udpcopy"

type ClientConfig struct {
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	IdleTimeoutMs    int    `mapstructure:"idle_timeout_ms"`
	RecoverAttempts  int    `mapstructure:"recover_attempts"`
	RecoverTimeoutMs int    `mapstructure:"recover_timeout_ms"`
	LossPercent      int    `mapstructure:"loss_percent"`
	LossSeed         int64  `mapstructure:"loss_seed"`
	AutoRecover      bool   `mapstructure:"auto_recover"`
	SocketBufferSize int    `mapstructure:"socket_buffer_size"`
	OutputDir        string `mapstructure:"output_dir"`
	ReportDir        string `mapstructure:"report_dir"`
	HistoryFile      string `mapstructure:"history_file"`
	ClientUuid       string `mapstructure:"client_uuid"`
	LogLevel         string `mapstructure:"log_level"`
}

func LoadClientConfig(configPath string) (*ClientConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v, err := initViper(configPath, filepath.Join(home, configDirName), "client_config", "toml", "UDPCOPY_CLIENT")
	if err != nil {
		return nil, err
	}

	v.SetDefault("request_timeout_ms", 2000)
	v.SetDefault("idle_timeout_ms", 2000)
	v.SetDefault("recover_attempts", 3)
	v.SetDefault("recover_timeout_ms", 2000)
	v.SetDefault("loss_percent", 0)
	v.SetDefault("loss_seed", 0)
	v.SetDefault("auto_recover", false)
	v.SetDefault("socket_buffer_size", 1<<20)
	v.SetDefault("output_dir", ".")
	v.SetDefault("report_dir", "logs")
	v.SetDefault("history_file", filepath.Join(home, configDirName, "history.toml"))
	v.SetDefault("client_uuid", uuid.New().String())
	v.SetDefault("log_level", "info")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.OutputDir = expandPath(cfg.OutputDir)
	cfg.ReportDir = expandPath(cfg.ReportDir)
	cfg.HistoryFile = expandPath(cfg.HistoryFile)

	// Create-on-first-run ONLY (no config file was read)
	if v.ConfigFileUsed() == "" {
		writePath := configPath
		if writePath == "" {
			writePath = filepath.Join(home, configDirName, "client_config.toml")
		}
		if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
			if _, err := cfg.Save(writePath); err != nil {
				return nil, fmt.Errorf("persist default client config: %w", err)
			}
			Info("client config written", Fields{
				ConfigPath: writePath,
			})
		}
	}

	return &cfg, nil
}

type ServerConfig struct {
	Port               int    `mapstructure:"port"`
	RootDir            string `mapstructure:"root_dir"`
	SegmentSize        int    `mapstructure:"segment_size"`
	RequestTimeoutMs   int    `mapstructure:"request_timeout_ms"`
	RetransmitTimeout  int    `mapstructure:"retransmit_timeout_ms"`
	MaxRetries         int    `mapstructure:"max_retries"`
	RecoveryWindowMs   int    `mapstructure:"recovery_window_ms"`
	SendPacingMs       int    `mapstructure:"send_pacing_ms"`
	UDPReadBufferSize  int    `mapstructure:"udp_read_buffer_size"`
	UDPWriteBufferSize int    `mapstructure:"udp_write_buffer_size"`
	UDPReadTimeoutMs   int    `mapstructure:"udp_read_timeout_ms"`
	UDPQueueDepth      int    `mapstructure:"udp_queue_depth"`
	MetricsAddr        string `mapstructure:"metrics_addr"`
	ServerId           string `mapstructure:"server_id"`
	LogLevel           string `mapstructure:"log_level"`
}

func LoadServerConfig(configPath string) (*ServerConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New("failed to load users home directory: " + err.Error())
	}
	v, err := initViper(configPath, filepath.Join(home, configDirName), "server_config", "toml", "UDPCOPY_SERVER")
	if err != nil {
		return nil, errors.New("failed to load server config: " + err.Error())
	}

	v.SetDefault("port", 5000)
	v.SetDefault("root_dir", "files")
	v.SetDefault("segment_size", 1454)
	v.SetDefault("request_timeout_ms", 2000)
	v.SetDefault("retransmit_timeout_ms", 2000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("recovery_window_ms", 5000)
	v.SetDefault("send_pacing_ms", 0)
	v.SetDefault("udp_read_buffer_size", 64*1024)
	v.SetDefault("udp_write_buffer_size", 64*1024)
	v.SetDefault("udp_read_timeout_ms", 1000)
	v.SetDefault("udp_queue_depth", 64)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("server_id", uuid.New().String())
	v.SetDefault("log_level", "info")

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.RootDir = expandPath(cfg.RootDir)

	// Create-on-first-run ONLY (no config file was read)
	if v.ConfigFileUsed() == "" {
		writePath := configPath
		if writePath == "" {
			writePath = filepath.Join(home, configDirName, "server_config.toml")
		}
		if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
			if _, err := cfg.Save(writePath); err != nil {
				return nil, fmt.Errorf("persist default server config: %w", err)
			}
			Info("server config written", Fields{
				ConfigPath: writePath,
			})
		}
	}

	return &cfg, nil
}

func initViper(configPath, defaultDir, defaultName, defaultType, envPrefix string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType(defaultType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultDir)
		v.AddConfigPath(".")
		v.SetConfigName(defaultName)
	}

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound {
			Error("config file not found", Fields{
				ConfigPath: configPath,
			})
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func (cfg *ClientConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, configDirName, "client_config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("request_timeout_ms", cfg.RequestTimeoutMs)
	v.Set("idle_timeout_ms", cfg.IdleTimeoutMs)
	v.Set("recover_attempts", cfg.RecoverAttempts)
	v.Set("recover_timeout_ms", cfg.RecoverTimeoutMs)
	v.Set("loss_percent", cfg.LossPercent)
	v.Set("loss_seed", cfg.LossSeed)
	v.Set("auto_recover", cfg.AutoRecover)
	v.Set("socket_buffer_size", cfg.SocketBufferSize)
	v.Set("output_dir", cfg.OutputDir)
	v.Set("report_dir", cfg.ReportDir)
	v.Set("history_file", cfg.HistoryFile)
	v.Set("client_uuid", cfg.ClientUuid)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write client config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func (cfg *ServerConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, configDirName, "server_config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("port", cfg.Port)
	v.Set("root_dir", cfg.RootDir)
	v.Set("segment_size", cfg.SegmentSize)
	v.Set("request_timeout_ms", cfg.RequestTimeoutMs)
	v.Set("retransmit_timeout_ms", cfg.RetransmitTimeout)
	v.Set("max_retries", cfg.MaxRetries)
	v.Set("recovery_window_ms", cfg.RecoveryWindowMs)
	v.Set("send_pacing_ms", cfg.SendPacingMs)
	v.Set("udp_read_buffer_size", cfg.UDPReadBufferSize)
	v.Set("udp_write_buffer_size", cfg.UDPWriteBufferSize)
	v.Set("udp_read_timeout_ms", cfg.UDPReadTimeoutMs)
	v.Set("udp_queue_depth", cfg.UDPQueueDepth)
	v.Set("metrics_addr", cfg.MetricsAddr)
	v.Set("server_id", cfg.ServerId)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write server config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
