package application

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/lk2023060901/discord-shim-go/internal/chat/discord"
	"github.com/lk2023060901/discord-shim-go/internal/format"
	"github.com/lk2023060901/discord-shim-go/internal/healthcheck"
	"github.com/lk2023060901/discord-shim-go/internal/network/protocol"
	zlog "github.com/lk2023060901/discord-shim-go/pkg/log"
	"github.com/lk2023060901/discord-shim-go/pkg/util/merr"
	zviper "github.com/lk2023060901/discord-shim-go/pkg/util/viper"
)

const (
	// DefaultConfigPath 为未指定时读取的配置文件，文件不存在不视为错误。
	DefaultConfigPath = "./config.yaml"
	// ConfigPathEnv 指定配置文件路径，优先级低于 --config。
	ConfigPathEnv = "SHIM_CONFIG_FILE_PATH"

	DefaultListenAddress = "0.0.0.0:23416"

	// envCloudServer 存在即开启云端模式，与取值无关。
	envCloudServer = "CLOUD_SERVER"
)

// 配置项 key。
const (
	keyDiscordToken       = "discord.token"
	keyHealthCheckChannel = "discord.health-check-channel-id"
	keyDownloadWorkers    = "discord.download-workers"
	keyCloudServer        = "relay.cloud-server"
	keyListenAddress      = "relay.listen-address"
	keyMaxFrameSize       = "relay.max-frame-size"
	keyWriteTimeout       = "relay.write-timeout"
	keyAttachmentCeiling  = "relay.attachment-ceiling"
	keyAdminListenAddress = "admin.listen-address"
	keyHealthCheckAddress = "healthcheck.address"
	keyHealthCheckTimeout = "healthcheck.timeout"
	keyLogLevel           = "log.level"
	keyLogFormat          = "log.format"
	keyLogStdout          = "log.stdout"
	keyLogFileRoot        = "log.file.rootpath"
	keyLogFileName        = "log.file.filename"
	keyLogFileMaxSize     = "log.file.max-size"
	keyLogFileMaxDays     = "log.file.max-days"
	keyLogFileMaxBackups  = "log.file.max-backups"
	keyLogDisableStack    = "log.disable-stacktrace"
)

// Config 为进程配置。
type Config struct {
	Discord     DiscordConfig
	Relay       RelayConfig
	Admin       AdminConfig
	HealthCheck HealthCheckConfig
	Log         zlog.Config
}

type DiscordConfig struct {
	Token string
	// ControlChannel 同时是健康检查频道，0 表示未配置。
	ControlChannel  protocol.ChannelID
	DownloadWorkers int
}

type RelayConfig struct {
	CloudServer       bool
	ListenAddress     string
	MaxFrameSize      uint32
	WriteTimeout      time.Duration
	AttachmentCeiling int
}

type AdminConfig struct {
	// ListenAddress 为空时不启动运维 HTTP 服务。
	ListenAddress string
}

type HealthCheckConfig struct {
	Address string
	Timeout time.Duration
}

// ResolveConfigPath 按优先级确定配置文件路径：
//  1. flag（--config）
//  2. 环境变量 SHIM_CONFIG_FILE_PATH
//  3. ./config.yaml
func ResolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(ConfigPathEnv); env != "" {
		return env
	}
	return DefaultConfigPath
}

// LoadConfig 读取 .env、配置文件与环境变量并生成 Config。
//
// 取值优先级（高到低）：环境变量 > 配置文件 > 默认值。
// .env 中的变量不会覆盖进程中已存在的环境变量。
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := zviper.New()
	setDefaults(v)
	if err := bindEnvs(v); err != nil {
		return nil, err
	}
	if _, err := v.LoadFileIfExists(path); err != nil {
		return nil, errors.Wrapf(err, "load config file %q", path)
	}

	cfg := &Config{
		Discord: DiscordConfig{
			Token:           v.GetString(keyDiscordToken),
			DownloadWorkers: v.GetInt(keyDownloadWorkers),
		},
		Relay: RelayConfig{
			CloudServer:       v.GetBool(keyCloudServer),
			ListenAddress:     v.GetString(keyListenAddress),
			WriteTimeout:      v.GetDuration(keyWriteTimeout),
			AttachmentCeiling: v.GetInt(keyAttachmentCeiling),
		},
		Admin: AdminConfig{
			ListenAddress: v.GetString(keyAdminListenAddress),
		},
		HealthCheck: HealthCheckConfig{
			Address: v.GetString(keyHealthCheckAddress),
			Timeout: v.GetDuration(keyHealthCheckTimeout),
		},
	}

	if _, ok := os.LookupEnv(envCloudServer); ok {
		cfg.Relay.CloudServer = true
	}

	if raw := v.GetString(keyHealthCheckChannel); raw != "" {
		id, err := discord.ParseSnowflake(raw)
		if err != nil {
			return nil, merr.WrapErrConfigInvalid(keyHealthCheckChannel, raw)
		}
		cfg.Discord.ControlChannel = protocol.ChannelID(id)
	}

	frame := v.GetInt(keyMaxFrameSize)
	if frame < 0 || uint64(frame) > uint64(^uint32(0)) {
		return nil, merr.WrapErrConfigInvalid(keyMaxFrameSize, frame)
	}
	cfg.Relay.MaxFrameSize = uint32(frame)
	if cfg.Relay.WriteTimeout < 0 {
		return nil, merr.WrapErrConfigInvalid(keyWriteTimeout, cfg.Relay.WriteTimeout)
	}
	if cfg.Relay.AttachmentCeiling <= 0 {
		return nil, merr.WrapErrConfigInvalid(keyAttachmentCeiling, cfg.Relay.AttachmentCeiling)
	}

	cfg.Log = zlog.Config{
		Level:             v.GetString(keyLogLevel),
		Format:            v.GetString(keyLogFormat),
		Stdout:            v.GetBool(keyLogStdout),
		DisableStacktrace: v.GetBool(keyLogDisableStack),
		File: zlog.FileLogConfig{
			RootPath:   v.GetString(keyLogFileRoot),
			Filename:   v.GetString(keyLogFileName),
			MaxSize:    v.GetInt(keyLogFileMaxSize),
			MaxDays:    v.GetInt(keyLogFileMaxDays),
			MaxBackups: v.GetInt(keyLogFileMaxBackups),
		},
	}
	return cfg, nil
}

// ValidateServe 检查 serve 子命令必需的配置。
func (c *Config) ValidateServe() error {
	if c.Discord.Token == "" {
		return merr.WrapErrConfigMissing(keyDiscordToken, "set DISCORD_TOKEN")
	}
	if !c.Discord.ControlChannel.IsSet() {
		return merr.WrapErrConfigMissing(keyHealthCheckChannel, "set HEALTH_CHECK_CHANNEL_ID")
	}
	return nil
}

// ValidateHealthCheck 检查 healthcheck 子命令必需的配置。
func (c *Config) ValidateHealthCheck() error {
	if !c.Discord.ControlChannel.IsSet() {
		return merr.WrapErrConfigMissing(keyHealthCheckChannel, "set HEALTH_CHECK_CHANNEL_ID")
	}
	return nil
}

func setDefaults(v *zviper.Config) {
	v.SetDefault(keyDownloadWorkers, discord.DefaultDownloadWorkers)
	v.SetDefault(keyCloudServer, false)
	v.SetDefault(keyListenAddress, DefaultListenAddress)
	v.SetDefault(keyMaxFrameSize, 0)
	v.SetDefault(keyWriteTimeout, time.Duration(0))
	v.SetDefault(keyAttachmentCeiling, format.DefaultAttachmentCeiling)
	v.SetDefault(keyAdminListenAddress, "")
	v.SetDefault(keyHealthCheckAddress, healthcheck.DefaultAddress)
	v.SetDefault(keyHealthCheckTimeout, healthcheck.DefaultTimeout)

	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, zlog.FormatText)
	v.SetDefault(keyLogStdout, true)
	v.SetDefault(keyLogFileRoot, "")
	v.SetDefault(keyLogFileName, "")
	v.SetDefault(keyLogFileMaxSize, 0)
	v.SetDefault(keyLogFileMaxDays, 0)
	v.SetDefault(keyLogFileMaxBackups, 0)
	v.SetDefault(keyLogDisableStack, false)
}

// bindEnvs 绑定部署时常用的环境变量名。
func bindEnvs(v *zviper.Config) error {
	bindings := map[string][]string{
		keyDiscordToken:       {"DISCORD_TOKEN"},
		keyHealthCheckChannel: {"HEALTH_CHECK_CHANNEL_ID"},
		keyListenAddress:      {"SHIM_LISTEN_ADDRESS"},
		keyAdminListenAddress: {"SHIM_ADMIN_ADDRESS"},
		keyLogLevel:           {"SHIM_LOG_LEVEL"},
		keyLogFormat:          {"SHIM_LOG_FORMAT"},
		keyLogStdout:          {"SHIM_LOG_STDOUT"},
		keyLogFileRoot:        {"SHIM_LOG_FILE_DIR"},
		keyLogFileName:        {"SHIM_LOG_FILE"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(key, envs...); err != nil {
			return errors.Wrapf(err, "bind env for %s", key)
		}
	}
	return nil
}
