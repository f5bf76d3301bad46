package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env         string            `yaml:"env" env:"ENV" env-default:"local"`
	DSN         string            `yaml:"dsn" env:"DSN"`
	HTTP        HTTPConfig        `yaml:"http"`
	Session     SessionConfig     `yaml:"session"`
	JWT         JWTConfig         `yaml:"jwt"`
	Redis       RedisConf         `yaml:"redis"`
	Cache       CacheConfig       `yaml:"cache"`
	Content     ContentConfig     `yaml:"content"`
	FileStorage FileStorageConfig `yaml:"file_storage"`
	Bootstrap   BootstrapConfig   `yaml:"bootstrap"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"10s"`
}

type SessionConfig struct {
	Name   string `yaml:"name" env-default:"session"`
	Secret string `yaml:"secret" env:"SESSION_SECRET" env-default:"change-me"`
	MaxAge int    `yaml:"max_age" env-default:"43200"`
	Secure bool   `yaml:"secure" env:"SESSION_SECURE"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET" env-default:"change-me"`
	AccessTTL  time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"168h"`
}

// RedisConf пустой адрес означает работу без redis (кэш и токены в памяти процесса)
type RedisConf struct {
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redispassword" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" env-default:"5m"`
}

type ContentConfig struct {
	DefaultLocale string `yaml:"default_locale" env-default:"en"`
}

type FileStorageConfig struct {
	BaseDir string `yaml:"base_dir" env-default:"./backups"`
	BaseURL string `yaml:"base_url"`
}

type BootstrapConfig struct {
	Email    string `yaml:"email" env:"BOOTSTRAP_EMAIL"`
	Password string `yaml:"password" env:"BOOTSTRAP_PASSWORD"`
}

func MustLoad() *Config {
	path := fetchConfigPath()
	if path == "" {
		panic("config path is empty")
	}

	return MustLoadPath(path)
}

func MustLoadPath(configPath string) *Config {
	// check if file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	// .env необязателен, переменные окружения могут прийти и из оркестратора
	_ = godotenv.Load()

	// --config="path/to/config.yaml"
	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
