package viper

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
//
// 取值优先级（高到低）：显式 Set > 环境变量 > 配置文件 > 默认值。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
func New() *Config {
	return &Config{
		v: spfviper.New(),
	}
}

func (c *Config) viper() *spfviper.Viper {
	if c.v == nil {
		c.v = spfviper.New()
	}
	return c.v
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	v := c.viper()
	v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	case ".json":
		v.SetConfigType("json")
	default:
		// 让 viper 自行推断类型，或在读取时返回清晰的错误信息。
	}

	return v.ReadInConfig()
}

// LoadFileIfExists 与 LoadFile 相同，但文件不存在时不返回错误。
// 返回值 loaded 表示是否实际读取了文件。
func (c *Config) LoadFileIfExists(path string) (loaded bool, err error) {
	if path == "" {
		return false, nil
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return false, nil
		}
		return false, statErr
	}
	if err := c.LoadFile(path); err != nil {
		return false, err
	}
	return true, nil
}

// BindEnv 将 key 与一个或多个环境变量名绑定。
func (c *Config) BindEnv(key string, envs ...string) error {
	input := append([]string{key}, envs...)
	return c.viper().BindEnv(input...)
}

// AutomaticEnv 以 prefix 为前缀自动读取环境变量，key 中的 "." 与 "-" 替换为 "_"。
func (c *Config) AutomaticEnv(prefix string) {
	v := c.viper()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// SetDefault 设置 key 的默认值。
func (c *Config) SetDefault(key string, value any) {
	c.viper().SetDefault(key, value)
}

// Set 显式设置 key 的值，优先级最高。
func (c *Config) Set(key string, value any) {
	c.viper().Set(key, value)
}

// IsSet 返回 key 是否存在取值（包括默认值）。
func (c *Config) IsSet(key string) bool {
	return c.viper().IsSet(key)
}

func (c *Config) GetString(key string) string {
	return strings.TrimSpace(c.viper().GetString(key))
}

func (c *Config) GetBool(key string) bool {
	return c.viper().GetBool(key)
}

func (c *Config) GetInt(key string) int {
	return c.viper().GetInt(key)
}

func (c *Config) GetUint64(key string) uint64 {
	return c.viper().GetUint64(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	return c.viper().GetDuration(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst interface{}) error {
	return c.viper().Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst interface{}) error {
	return c.viper().UnmarshalKey(key, dst)
}
