package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer HTTPServer `yaml:"http_server"`
	PGSQL      PQSQL      `yaml:"pgsql"`
	Redis      Redis      `yaml:"redis"`
	MinIO      MinIO      `yaml:"minio"`
	Storage    Storage    `yaml:"storage"`
	Media      Media      `yaml:"media"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	Sweeper    Sweeper    `yaml:"sweeper"`
	JWTSecret  string     `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"super_secret_key" validate:"required"`
	IDSalt     string     `yaml:"id_salt" env:"ID_SALT"`
}

type HTTPServer struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080" validate:"required"`
	// Peers allowed to set X-Forwarded-For, as CIDRs or single addresses
	TrustedProxies []string `yaml:"trusted_proxies" env:"HTTP_TRUSTED_PROXIES" env-separator:"," validate:"dive,cidr|ip"`
}

type PQSQL struct {
	Host     string `yaml:"host" env-default:"localhost"`
	Port     string `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-default:"postgres"`
	Password string `yaml:"password" env:"PGSQL_PASSWORD" env-default:"password"`
	DBName   string `yaml:"dbname" env-default:"gallery_db"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

// Redis holds the connection used for rate-limit windows and the fingerprint cache.
// An empty Addr switches both to in-process implementations.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env-default:"24h"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKeyID     string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY"`
	SecretAccessKey string `yaml:"secret_access_key" env:"MINIO_SECRET_KEY"`
	BucketName      string `yaml:"bucket_name" env-default:"gallery"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// Storage selects where artifacts and records live.
type Storage struct {
	Objects string `yaml:"objects" env:"STORAGE_OBJECTS" env-default:"fs" validate:"oneof=fs s3"`
	Records string `yaml:"records" env:"STORAGE_RECORDS" env-default:"postgres" validate:"oneof=postgres memory"`
	FSRoot  string `yaml:"fs_root" env:"STORAGE_FS_ROOT" env-default:"./data"`
}

// AllowUploads carries no env-default: cleanenv would overwrite an explicit false.
type Media struct {
	AllowUploads     bool     `yaml:"allow_uploads" env:"ALLOW_UPLOADS"`
	PrivilegedRole   string   `yaml:"privileged_role" env-default:"admin" validate:"required"`
	MaxUploadBytes   int64    `yaml:"max_upload_bytes" env-default:"3145728" validate:"gt=0"`
	AllowedMimeTypes []string `yaml:"allowed_mime_types" env-default:"image/png,image/jpeg,image/jpg" validate:"min=1,dive,required"`
	ImageQuality     int      `yaml:"image_quality" env-default:"90" validate:"min=1,max=100"`
	ThumbnailQuality int      `yaml:"thumbnail_quality" env-default:"80" validate:"min=1,max=100"`
	ImageMaxWidth    int      `yaml:"image_max_width" env-default:"2500" validate:"gt=0"`
	ImageMaxHeight   int      `yaml:"image_max_height" env-default:"2500" validate:"gt=0"`
	PublicBaseURL    string   `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:8080" validate:"required,url"`
}

type RateLimit struct {
	Max    int64         `yaml:"max" env-default:"2" validate:"gt=0"`
	Window time.Duration `yaml:"window" env-default:"10s" validate:"gt=0"`
}

type Sweeper struct {
	Interval    time.Duration `yaml:"interval" env-default:"10m" validate:"gt=0"`
	GracePeriod time.Duration `yaml:"grace_period" env-default:"1h" validate:"gt=0"`
}

// Load reads the YAML file at path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	var configPath string

	configPath = os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to config file")
		flag.Parse()
		configPath = *flags

		if configPath == "" {
			log.Fatal("config path must be provided")
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exist at path: %s", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}
