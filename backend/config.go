package backend

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fluxhook/fluxhook/backend/data"
	pgxlog15 "github.com/jackc/pgx-log15"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/vaughan0/go-ini"
	log "gopkg.in/inconshreveable/log15.v2"
)

func LoadConfig(path string) (ini.File, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %v", err)
	}

	file, err := ini.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}

	return file, nil
}

func NewLogger(conf ini.File) (log.Logger, error) {
	level, _ := conf.Get("log", "level")
	if level == "" {
		level = "warn"
	}

	logger := log.New()
	if err := setFilterHandler(level, logger, log.StdoutHandler); err != nil {
		return nil, err
	}

	return logger, nil
}

func setFilterHandler(level string, logger log.Logger, handler log.Handler) error {
	if level == "none" {
		logger.SetHandler(log.DiscardHandler())
		return nil
	}

	lvl, err := log.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("bad log level: %v", err)
	}
	logger.SetHandler(log.LvlFilterHandler(lvl, handler))

	return nil
}

func NewPool(ctx context.Context, conf ini.File, logger log.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig("")
	if err != nil {
		return nil, err
	}

	if level, ok := conf.Get("log", "pgx_level"); ok && level != "none" {
		pgxLogLevel, err := tracelog.LogLevelFromString(level)
		if err != nil {
			return nil, fmt.Errorf("bad pgx log level: %v", err)
		}
		poolConfig.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxlog15.NewLogger(logger.New("module", "pgx")),
			LogLevel: pgxLogLevel,
		}
	}

	connConfig := poolConfig.ConnConfig
	connConfig.Host, _ = conf.Get("database", "host")
	if connConfig.Host == "" {
		return nil, errors.New("config must contain database.host but it does not")
	}

	if p, ok := conf.Get("database", "port"); ok {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("bad database.port: %v", err)
		}
		connConfig.Port = uint16(n)
	}

	var ok bool
	if connConfig.Database, ok = conf.Get("database", "database"); !ok {
		return nil, errors.New("config must contain database.database but it does not")
	}
	connConfig.User, _ = conf.Get("database", "user")
	connConfig.Password, _ = conf.Get("database", "password")

	poolConfig.MaxConns = 10

	return pgxpool.NewWithConfig(ctx, poolConfig)
}

// OpenStore opens the store selected by database.driver: postgres (the default) or sqlite.
func OpenStore(ctx context.Context, conf ini.File, logger log.Logger) (data.Store, error) {
	driver, _ := conf.Get("database", "driver")
	switch driver {
	case "", "postgres":
		pool, err := NewPool(ctx, conf, logger)
		if err != nil {
			return nil, err
		}
		return data.NewPgxStore(pool), nil
	case "sqlite":
		path, ok := conf.Get("database", "path")
		if !ok || path == "" {
			return nil, errors.New("config must contain database.path for the sqlite driver but it does not")
		}
		store, err := data.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown database.driver %q", driver)
	}
}

// LoadAppConfig reads the poller, delivery and auth sections.
func LoadAppConfig(conf ini.File) (AppConfig, error) {
	var config AppConfig
	var err error

	if config.Poller.Interval, err = getDuration(conf, "poller", "interval", 2*time.Second); err != nil {
		return config, err
	}
	if config.Poller.FetchTimeout, err = getDuration(conf, "poller", "fetch_timeout", 60*time.Second); err != nil {
		return config, err
	}

	if config.Delivery.Timeout, err = getDuration(conf, "delivery", "timeout", 10*time.Second); err != nil {
		return config, err
	}
	if s, ok := conf.Get("delivery", "max_concurrent"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return config, fmt.Errorf("bad delivery.max_concurrent %q", s)
		}
		config.Delivery.MaxConcurrent = n
	}
	if s, ok := conf.Get("delivery", "rate_per_host"); ok {
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || n < 0 {
			return config, fmt.Errorf("bad delivery.rate_per_host %q", s)
		}
		config.Delivery.RatePerHost = n
	}

	config.Auth.Environment, _ = conf.Get("auth", "environment")
	if config.Auth.Environment == "" {
		config.Auth.Environment = "development"
	}
	config.Auth.PasswordHash, _ = conf.Get("auth", "password_hash")
	config.Auth.JWTSecret, _ = conf.Get("auth", "jwt_secret")
	if config.Auth.TokenTTL, err = getDuration(conf, "auth", "token_ttl", 24*time.Hour); err != nil {
		return config, err
	}

	return config, nil
}

func getDuration(conf ini.File, section, key string, fallback time.Duration) (time.Duration, error) {
	s, ok := conf.Get(section, key)
	if !ok || s == "" {
		return fallback, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("bad %s.%s %q", section, key, s)
	}

	return d, nil
}
