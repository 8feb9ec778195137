package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Game   GameConfig   `mapstructure:"game"`
	WS     WSConfig     `mapstructure:"ws"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// GameConfig 游戏规则相关配置
type GameConfig struct {
	NightSeconds      int     `mapstructure:"night_seconds"`
	DaySeconds        int     `mapstructure:"day_seconds"`
	VoteSeconds       int     `mapstructure:"vote_seconds"`
	AccelerateSeconds int     `mapstructure:"accelerate_seconds"`
	MinPlayers        int     `mapstructure:"min_players"`
	MaxPlayers        int     `mapstructure:"max_players"`
	DayQuorumRatio    float64 `mapstructure:"day_quorum_ratio"`
}

// WSConfig websocket 连接配置
type WSConfig struct {
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	Burst             int     `mapstructure:"burst"`
	SendBuffer        int     `mapstructure:"send_buffer"`
	MaxMessageBytes   int64   `mapstructure:"max_message_bytes"`
	PingInterval      int     `mapstructure:"ping_interval_seconds"`
}

var errInvalidConfig = errors.New("配置无效")

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)

	v.SetDefault("game.night_seconds", 60)
	v.SetDefault("game.day_seconds", 120)
	v.SetDefault("game.vote_seconds", 60)
	v.SetDefault("game.accelerate_seconds", 10)
	v.SetDefault("game.min_players", 4)
	v.SetDefault("game.max_players", 12)
	v.SetDefault("game.day_quorum_ratio", 0.7)

	v.SetDefault("ws.messages_per_second", 5.0)
	v.SetDefault("ws.burst", 10)
	v.SetDefault("ws.send_buffer", 64)
	v.SetDefault("ws.max_message_bytes", 4096)
	v.SetDefault("ws.ping_interval_seconds", 15)
}

// Default 返回默认配置
func Default() Config {
	cfg, _ := Load("")
	return cfg
}

// Load 读取配置，path 为空时只使用默认值和环境变量
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEREWOLF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("读取配置文件 %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("解析配置: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 检查配置是否合法
func (c Config) Validate() error {
	g := c.Game
	switch {
	case g.NightSeconds <= 0 || g.DaySeconds <= 0 || g.VoteSeconds <= 0:
		return fmt.Errorf("%w: 阶段时长必须为正数", errInvalidConfig)
	case g.AccelerateSeconds <= 0:
		return fmt.Errorf("%w: 加速时长必须为正数", errInvalidConfig)
	case g.MinPlayers < 4:
		return fmt.Errorf("%w: 最少玩家数不能小于4", errInvalidConfig)
	case g.MaxPlayers < g.MinPlayers:
		return fmt.Errorf("%w: 最大玩家数不能小于最少玩家数", errInvalidConfig)
	case g.DayQuorumRatio <= 0 || g.DayQuorumRatio > 1:
		return fmt.Errorf("%w: 白天加速比例必须在(0,1]之间", errInvalidConfig)
	case c.WS.MessagesPerSecond <= 0 || c.WS.Burst <= 0:
		return fmt.Errorf("%w: 限流参数必须为正数", errInvalidConfig)
	}
	return nil
}
