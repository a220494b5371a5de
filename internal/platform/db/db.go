package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"
)

const configFilePath = "config/config.yaml"

type DatabaseConfig struct {
	Driver      Dialect `yaml:"driver"` // mysql (default) | sqlite | postgres
	Host        string  `yaml:"host"`
	Port        int     `yaml:"port"`
	Username    string  `yaml:"user"`
	Password    string  `yaml:"password"`
	DBName      string  `yaml:"dbname"`
	Path        string  `yaml:"path"` // sqlite のみ
	AutoMigrate bool    `yaml:"auto_migrate"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Timezone    string         `yaml:"timezone"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
}

// DefaultConfigPath is used when no path is given on the command line.
func DefaultConfigPath() string { return configFilePath }

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.DB.Driver == "" {
		c.DB.Driver = MySQL
	}
}

// Location resolves the configured time zone used for date-only business rules.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func dsn(c DatabaseConfig) (string, error) {
	switch c.Driver {
	case MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC&clientFoundRows=true",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	case Postgres:
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&timezone=UTC",
			c.Username, c.Password, c.Host, c.Port, c.DBName), nil
	case SQLite:
		if c.Path == "" {
			return "", fmt.Errorf("database.path is required for sqlite")
		}
		return "file:" + c.Path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	source, err := dsn(c)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(c.Driver.DriverName(), source)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	if c.Driver == SQLite {
		// SQLite は書き込みが直列なので 1 本に絞る
		db.SetMaxOpenConns(1)
		return db, nil
	}

	// 接続プール（合算がDBの max_connections を超えないよう配分する）
	db.SetMaxOpenConns(80)
	db.SetMaxIdleConns(20)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
