package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	Lock    LockConfig    `mapstructure:"lock"`
	Twitch  TwitchConfig  `mapstructure:"twitch"`
	Sheets  SheetsConfig  `mapstructure:"sheets"`
	Vote    VoteConfig    `mapstructure:"vote"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Storage StorageConfig `mapstructure:"storage"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	// 数据缓存Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
	Partition int      `mapstructure:"partition"`
	GroupID   string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints      []string      `mapstructure:"endpoints"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
}

// LockConfig 分布式锁配置，type支持etcd和redis两种实现
type LockConfig struct {
	Type string `mapstructure:"type"`
}

// TwitchConfig Twitch事件源配置
// 凭证由外部流程写入配置，本系统不负责OAuth流程
type TwitchConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	AccessToken   string        `mapstructure:"access_token"`
	BroadcasterID string        `mapstructure:"broadcaster_id"`
	Username      string        `mapstructure:"username"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`

	// 各投票档位对应的Reward ID
	NormalRewardID string `mapstructure:"normal_reward_id"`
	SuperRewardID  string `mapstructure:"super_reward_id"`
	UltraRewardID  string `mapstructure:"ultra_reward_id"`
}

// SheetsConfig Google Sheets镜像配置
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	SheetName       string `mapstructure:"sheet_name"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// VoteConfig 投票处理配置
type VoteConfig struct {
	NormalWeight  int           `mapstructure:"normal_weight"`
	SuperWeight   int           `mapstructure:"super_weight"`
	UltraWeight   int           `mapstructure:"ultra_weight"`
	MinMatchScore int           `mapstructure:"min_match_score"`
	CacheValidity time.Duration `mapstructure:"cache_validity"`
}

// SyncConfig 后台同步配置
type SyncConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	DivergenceRatio  float64       `mapstructure:"divergence_ratio"`
	WarnAfterErrors  int           `mapstructure:"warn_after_errors"`
	CooldownAfter    int           `mapstructure:"cooldown_after"`
	CooldownDuration time.Duration `mapstructure:"cooldown_duration"`
}

// StorageConfig 本地文件存储配置
type StorageConfig struct {
	ProcessedIDFile string `mapstructure:"processed_id_file"`
	InaccurateFile  string `mapstructure:"inaccurate_file"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

var AppConfig Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &AppConfig, nil
}

// setDefaults 设置关键参数的默认值，配置文件可覆盖
func setDefaults() {
	viper.SetDefault("lock.type", "etcd")
	viper.SetDefault("twitch.poll_interval", time.Second)
	viper.SetDefault("sheets.sheet_name", "Sheet1")
	viper.SetDefault("vote.normal_weight", 1)
	viper.SetDefault("vote.super_weight", 10)
	viper.SetDefault("vote.ultra_weight", 25)
	viper.SetDefault("vote.min_match_score", 80)
	viper.SetDefault("vote.cache_validity", 300*time.Second)
	viper.SetDefault("sync.interval", 5*time.Second)
	viper.SetDefault("sync.divergence_ratio", 1.1)
	viper.SetDefault("sync.warn_after_errors", 3)
	viper.SetDefault("sync.cooldown_after", 10)
	viper.SetDefault("sync.cooldown_duration", 60*time.Second)
	viper.SetDefault("storage.processed_id_file", "vote_ids.txt")
	viper.SetDefault("storage.inaccurate_file", "inaccurate_games.csv")
	viper.SetDefault("graphql.path", "/graphql")
}
