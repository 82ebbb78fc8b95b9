// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是所有服务共享的配置结构。
// 配置来源优先级: 环境变量 > YAML 配置文件 > 默认值。
type Config struct {
	Infra InfraConfig `yaml:"infra"`
	App   AppConfig   `yaml:"app"`
}

type InfraConfig struct {
	MySQL     MySQLConfig     `yaml:"mysql"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Jaeger    JaegerConfig    `yaml:"jaeger"`
	Zookeeper ZookeeperConfig `yaml:"zookeeper"`
	Nacos     NacosConfig     `yaml:"nacos"`
}

type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type ZookeeperConfig struct {
	Servers []string `yaml:"servers"`
}

type NacosConfig struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// AppConfig 保存与业务流程相关的可调参数
type AppConfig struct {
	// ReservationTimeout 是库存预占的有效期，超时后由后台清扫任务释放
	ReservationTimeout time.Duration `yaml:"reservationTimeout"`
	// SweepInterval 是清扫任务的轮询间隔
	SweepInterval time.Duration `yaml:"sweepInterval"`
	// OutboxPollInterval 是 Outbox Relay 的轮询间隔
	OutboxPollInterval time.Duration `yaml:"outboxPollInterval"`
	// PaymentStuckTimeout 是支付停留在 PROCESSING 状态的最长容忍时间
	PaymentStuckTimeout time.Duration `yaml:"paymentStuckTimeout"`
	// PrecheckTimeout 是同步预检查 RPC 的超时时间
	PrecheckTimeout time.Duration `yaml:"precheckTimeout"`
	// DedupWindow 是消费侧按消息 ID 去重的时间窗口
	DedupWindow time.Duration `yaml:"dedupWindow"`
}

// UnmarshalYAML 手工解析时长字段，yaml.v3 不认识 "15m" 这种写法
func (a *AppConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ReservationTimeout  string `yaml:"reservationTimeout"`
		SweepInterval       string `yaml:"sweepInterval"`
		OutboxPollInterval  string `yaml:"outboxPollInterval"`
		PaymentStuckTimeout string `yaml:"paymentStuckTimeout"`
		PrecheckTimeout     string `yaml:"precheckTimeout"`
		DedupWindow         string `yaml:"dedupWindow"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	fields := []struct {
		name string
		src  string
		dst  *time.Duration
	}{
		{"reservationTimeout", raw.ReservationTimeout, &a.ReservationTimeout},
		{"sweepInterval", raw.SweepInterval, &a.SweepInterval},
		{"outboxPollInterval", raw.OutboxPollInterval, &a.OutboxPollInterval},
		{"paymentStuckTimeout", raw.PaymentStuckTimeout, &a.PaymentStuckTimeout},
		{"precheckTimeout", raw.PrecheckTimeout, &a.PrecheckTimeout},
		{"dedupWindow", raw.DedupWindow, &a.DedupWindow},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		d, err := time.ParseDuration(f.src)
		if err != nil {
			return fmt.Errorf("invalid duration for app.%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

var (
	current Config
	once    sync.Once
)

// Load 加载配置。path 为空时只使用环境变量与默认值。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)
	current = cfg
	return &cfg, nil
}

// MustLoad 在启动阶段加载配置，失败直接退出。
// 配置文件路径从 CONFIG_FILE 环境变量读取，未设置时仅用环境变量。
func MustLoad() *Config {
	once.Do(func() {
		if _, err := Load(GetEnv("CONFIG_FILE", "")); err != nil {
			panic(err)
		}
	})
	return &current
}

// GetCurrent 返回最近一次加载的配置
func GetCurrent() *Config {
	return &current
}

func defaults() Config {
	return Config{
		Infra: InfraConfig{
			MySQL:     MySQLConfig{Host: "localhost", Port: 3306, User: "root", Database: "marketplace"},
			Redis:     RedisConfig{Addr: "localhost:6379"},
			Kafka:     KafkaConfig{Brokers: []string{"localhost:9092"}},
			Jaeger:    JaegerConfig{Endpoint: "http://localhost:14268/api/traces"},
			Zookeeper: ZookeeperConfig{Servers: []string{"localhost:2181"}},
			Nacos:     NacosConfig{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
		App: AppConfig{
			ReservationTimeout:  15 * time.Minute,
			SweepInterval:       30 * time.Second,
			OutboxPollInterval:  2 * time.Second,
			PaymentStuckTimeout: 10 * time.Minute,
			PrecheckTimeout:     3 * time.Second,
			DedupWindow:         24 * time.Hour,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MYSQL_HOST"); v != "" {
		cfg.Infra.MySQL.Host = v
	}
	if v := os.Getenv("MYSQL_PASSWORD"); v != "" {
		cfg.Infra.MySQL.Password = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZOOKEEPER_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
}

// GetEnv 从环境变量中读取配置，未设置时返回 fallback。
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
