package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/opspanel/backend/internal/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Security  SecurityConfig  `mapstructure:"security"`
	Features  FeaturesConfig  `mapstructure:"features"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Backup    BackupConfig    `mapstructure:"backup"`
	Probe     ProbeConfig     `mapstructure:"probe"`
	Ansible   AnsibleConfig   `mapstructure:"ansible"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type SecurityConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig pool: pool_size idle connections plus max_overflow extra
// ones, recycled after pool_recycle.
type DatabaseConfig struct {
	Driver      string        `mapstructure:"driver"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Name        string        `mapstructure:"name"`
	SSLMode     string        `mapstructure:"sslmode"`
	Path        string        `mapstructure:"path"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxOverflow int           `mapstructure:"max_overflow"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	PoolRecycle time.Duration `mapstructure:"pool_recycle"`
	PingOnStart bool          `mapstructure:"ping_on_start"`
}

func (d *DatabaseConfig) MaxOpenConns() int {
	return d.PoolSize + d.MaxOverflow
}

func (d *DatabaseConfig) DSN() string {
	timeout := int(d.PoolTimeout.Seconds())
	switch d.Driver {
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&timeout=%ds",
			d.User, d.Password, net.JoinHostPort(d.Host, strconv.Itoa(d.Port)), d.Name, timeout,
		)
	case "sqlite":
		return d.Path
	default:
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode, timeout,
		)
	}
}

type RedisConfig struct {
	Host                 string        `mapstructure:"host"`
	Port                 int           `mapstructure:"port"`
	Password             string        `mapstructure:"password"`
	DB                   int           `mapstructure:"db"`
	PoolSize             int           `mapstructure:"pool_size"`
	SocketTimeout        time.Duration `mapstructure:"socket_timeout"`
	SocketConnectTimeout time.Duration `mapstructure:"socket_connect_timeout"`
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	KeyPrefix            string        `mapstructure:"key_prefix"`
}

func (r *RedisConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type LoggerConfig struct {
	Level            string        `mapstructure:"level"`
	Encoding         string        `mapstructure:"encoding"`
	OutputPaths      []string      `mapstructure:"output_paths"`
	ErrorOutputPaths []string      `mapstructure:"error_output_paths"`
	File             LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotated log file next to the regular outputs.
type LogFileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

type FeaturesConfig struct {
	RequestIDHeader      string `mapstructure:"request_id_header"`
	EnableRequestLogging bool   `mapstructure:"enable_request_logging"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	CallbackToken  string   `mapstructure:"callback_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type SchedulerConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval"`
	Timezone       string        `mapstructure:"timezone"`
	ScheduleFile   string        `mapstructure:"schedule_file"`
	EnqueueTimeout time.Duration `mapstructure:"enqueue_timeout"`
	LockKey        string        `mapstructure:"lock_key"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
}

func (s *SchedulerConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

type WorkerConfig struct {
	Queues      []string      `mapstructure:"queues"`
	Concurrency int           `mapstructure:"concurrency"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
}

type BackupConfig struct {
	Dir           string        `mapstructure:"dir"`
	Compress      bool          `mapstructure:"compress"`
	PgDumpPath    string        `mapstructure:"pg_dump_path"`
	MysqlDumpPath string        `mapstructure:"mysqldump_path"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type ProbeConfig struct {
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	Concurrency    int           `mapstructure:"concurrency"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	PingPath       string        `mapstructure:"ping_path"`
}

type AnsibleConfig struct {
	PlaybookBin string        `mapstructure:"playbook_bin"`
	PlaybookDir string        `mapstructure:"playbook_dir"`
	Inventory   string        `mapstructure:"inventory"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "opspanel")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "opspanel")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "opspanel.db")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.max_overflow", 20)
	v.SetDefault("database.pool_timeout", 30*time.Second)
	v.SetDefault("database.pool_recycle", time.Hour)
	v.SetDefault("database.ping_on_start", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.socket_timeout", 5*time.Second)
	v.SetDefault("redis.socket_connect_timeout", 5*time.Second)
	v.SetDefault("redis.health_check_interval", 30*time.Second)
	v.SetDefault("redis.key_prefix", "opspanel")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stdout"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
	v.SetDefault("logger.file.filename", "")
	v.SetDefault("logger.file.max_size_mb", 100)
	v.SetDefault("logger.file.max_age_days", 14)
	v.SetDefault("logger.file.max_backups", 7)
	v.SetDefault("logger.file.compress", true)

	v.SetDefault("security.secret_key", "")
	v.SetDefault("security.encryption_key", "")

	v.SetDefault("features.request_id_header", "X-Request-ID")
	v.SetDefault("features.enable_request_logging", true)

	v.SetDefault("auth.admin_api_key", "")
	v.SetDefault("auth.callback_token", "")
	v.SetDefault("auth.allowed_origins", []string{"*"})

	v.SetDefault("scheduler.tick_interval", time.Second)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.schedule_file", "")
	v.SetDefault("scheduler.enqueue_timeout", 500*time.Millisecond)
	v.SetDefault("scheduler.lock_key", "beat:leader")
	v.SetDefault("scheduler.lock_ttl", 15*time.Second)

	v.SetDefault("worker.queues", []string{"default", "maintenance", "backup", "probe", "ansible"})
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.task_timeout", 30*time.Minute)
	v.SetDefault("worker.poll_timeout", 2*time.Second)

	v.SetDefault("backup.dir", "/var/lib/opspanel/backups")
	v.SetDefault("backup.compress", true)
	v.SetDefault("backup.pg_dump_path", "pg_dump")
	v.SetDefault("backup.mysqldump_path", "mysqldump")
	v.SetDefault("backup.timeout", 30*time.Minute)

	v.SetDefault("probe.rate_per_second", 20.0)
	v.SetDefault("probe.concurrency", 16)
	v.SetDefault("probe.default_timeout", 5*time.Second)
	v.SetDefault("probe.ping_path", "ping")

	v.SetDefault("ansible.playbook_bin", "ansible-playbook")
	v.SetDefault("ansible.playbook_dir", "/etc/opspanel/playbooks")
	v.SetDefault("ansible.inventory", "/etc/opspanel/inventory")
	v.SetDefault("ansible.timeout", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.address", ":9102")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads an optional YAML file and then the OPSPANEL_* environment,
// which wins. A .env file in the working directory is loaded first.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("OPSPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.MarkConfiguration(errors.Wrap(err, "failed to read config file"))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.MarkConfiguration(errors.Wrap(err, "failed to unmarshal config"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings a process cannot start with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case "postgres", "mysql":
		if c.Database.Host == "" {
			problems = append(problems, "database.host is required")
		}
		if c.Database.Port <= 0 {
			problems = append(problems, "database.port must be positive")
		}
		if c.Database.Name == "" {
			problems = append(problems, "database.name is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			problems = append(problems, "database.path is required for sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Database.PoolSize < 0 || c.Database.MaxOverflow < 0 {
		problems = append(problems, "database pool sizes must not be negative")
	}

	if c.Redis.Host == "" || c.Redis.Port <= 0 {
		problems = append(problems, "redis.host and redis.port are required")
	}
	if c.Redis.DB < 0 {
		problems = append(problems, "redis.db must not be negative")
	}

	if c.Security.EncryptionKey == "" {
		problems = append(problems, "security.encryption_key is required")
	}
	if c.Scheduler.TickInterval <= 0 {
		problems = append(problems, "scheduler.tick_interval must be positive")
	}
	if c.Scheduler.EnqueueTimeout <= 0 || c.Scheduler.EnqueueTimeout >= c.Scheduler.TickInterval*10 {
		problems = append(problems, "scheduler.enqueue_timeout must be positive and short relative to the tick")
	}
	if _, err := c.Scheduler.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("scheduler.timezone: %v", err))
	}
	if c.Worker.Concurrency <= 0 {
		problems = append(problems, "worker.concurrency must be positive")
	}
	if len(c.Worker.Queues) == 0 {
		problems = append(problems, "worker.queues must not be empty")
	}

	if len(problems) > 0 {
		err := errors.Newf("invalid configuration: %s", strings.Join(problems, "; "))
		return domain.MarkConfiguration(errors.WithHint(err, "check the OPSPANEL_* environment variables"))
	}
	return nil
}
