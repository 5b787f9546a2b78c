package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Environment variables that override values from the config file.
const (
	envSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	envSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	envPostgresPassword    = "POSTGRES_PASSWORD"
	envAppBaseURL          = "APP_BASE_URL"
)

type Config struct {
	Env            string `yaml:"env"`
	BaseURL        string `yaml:"base_url"`
	MigrationsPath string `yaml:"migrations_path"`
	HTTPServer     `yaml:"http_server"`
	Postgres       `yaml:"postgres"`
	Spotify        Spotify  `yaml:"spotify"`
	Links          Links    `yaml:"links"`
	Metrics        Metrics  `yaml:"metrics"`
	Overview       Overview `yaml:"overview"`
	Cache          Cache    `yaml:"cache"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   30 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

// DSN returns the connection URL. User and password are escaped.
func (p *Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:     "/" + p.DB,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}

	return u.String()
}

// Spotify configures the music service client.
type Spotify struct {
	ClientID          string        `yaml:"client_id"`
	ClientSecret      string        `yaml:"client_secret"`
	TokenURL          string        `yaml:"token_url"`
	APIURL            string        `yaml:"api_url"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

var defaultSpotify = Spotify{
	TokenURL:          "https://accounts.spotify.com/api/token",
	APIURL:            "https://api.spotify.com/v1",
	Timeout:           10 * time.Second,
	RequestsPerSecond: 10,
	Burst:             5,
}

type Links struct {
	SlugLength     int `yaml:"slug_length"`
	SlugMaxRetries int `yaml:"slug_max_retries"`
}

// Metrics holds the super listener thresholds. Both are exclusive lower bounds.
type Metrics struct {
	SuperListenerPlays   int64   `yaml:"super_listener_plays"`
	SuperListenerMinutes float64 `yaml:"super_listener_minutes"`
}

type Overview struct {
	Concurrency int `yaml:"concurrency"`
}

type Cache struct {
	Enabled bool          `yaml:"enabled"`
	SizeMB  int           `yaml:"size_mb"`
	TTL     time.Duration `yaml:"ttl"`
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.BaseURL = "http://localhost:8080"
	cfg.MigrationsPath = "file://migrations"
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Spotify = defaultSpotify
	cfg.Links = Links{SlugLength: 8, SlugMaxRetries: 10}
	cfg.Metrics = Metrics{SuperListenerPlays: 10, SuperListenerMinutes: 30}
	cfg.Overview = Overview{Concurrency: 8}
	cfg.Cache = Cache{Enabled: true, SizeMB: 16, TTL: 30 * time.Second}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(envSpotifyClientID); ok {
		cfg.Spotify.ClientID = v
	}
	if v, ok := os.LookupEnv(envSpotifyClientSecret); ok {
		cfg.Spotify.ClientSecret = v
	}
	if v, ok := os.LookupEnv(envPostgresPassword); ok {
		cfg.Postgres.Password = v
	}
	if v, ok := os.LookupEnv(envAppBaseURL); ok {
		cfg.BaseURL = v
	}
}

// Missing lists the required settings that are empty.
func (cfg *Config) Missing() []string {
	var missing []string

	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	check("postgres.user", cfg.Postgres.User)
	check("postgres.db", cfg.Postgres.DB)
	check("spotify.client_id", cfg.Spotify.ClientID)
	check("spotify.client_secret", cfg.Spotify.ClientSecret)
	check("base_url", cfg.BaseURL)

	return missing
}
