package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultHTTPAddr         = ":8080"
	DefaultMaxUploadBytes   = 50 * 1024 * 1024
	DefaultManualMaxBytes   = 10 * 1024 * 1024
	DefaultTxnType          = "UPI"
	DefaultCandidateSource  = "vw_all_bank_transactions"
	DefaultReceiptTable     = "worker_payment_receipts"
	DefaultRefCheckBatch    = 500
	defaultAllowedOriginURL = "http://localhost:3000"
)

// Config holds runtime settings. Values come from an optional YAML file and are
// then overridden by environment variables.
type Config struct {
	HTTPAddr             string   `yaml:"http_addr"`
	DatabaseURL          string   `yaml:"database_url"`
	AllowedOrigins       []string `yaml:"allowed_origins"`
	AutoMigrate          bool     `yaml:"auto_migrate"`
	LogSQL               bool     `yaml:"log_sql"`
	MaxUploadBytes       int64    `yaml:"max_upload_bytes"`
	ManualMaxUploadBytes int64    `yaml:"manual_max_upload_bytes"`
	DefaultTxnType       string   `yaml:"default_txn_type"`
	CandidateSource      string   `yaml:"candidate_source"`
	ReceiptTable         string   `yaml:"receipt_table"`
	RefCheckBatchSize    int      `yaml:"ref_check_batch_size"`
}

func Default() *Config {
	return &Config{
		HTTPAddr:             DefaultHTTPAddr,
		AllowedOrigins:       []string{defaultAllowedOriginURL},
		AutoMigrate:          true,
		MaxUploadBytes:       DefaultMaxUploadBytes,
		ManualMaxUploadBytes: DefaultManualMaxBytes,
		DefaultTxnType:       DefaultTxnType,
		CandidateSource:      DefaultCandidateSource,
		ReceiptTable:         DefaultReceiptTable,
		RefCheckBatchSize:    DefaultRefCheckBatch,
	}
}

// Load reads the YAML file at path (skipped when path is empty or missing) and
// applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			log.Printf("[config] %s not found, using defaults", path)
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	} else if host := os.Getenv("DB_HOST"); host != "" {
		c.DatabaseURL = fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=disable",
			os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), host,
			envOr("DB_PORT", "5432"), os.Getenv("DB_NAME"),
		)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.AllowedOrigins = origins
	}
	if v := os.Getenv("AUTO_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTO_MIGRATE: %w", err)
		}
		c.AutoMigrate = b
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}
	if v := os.Getenv("DEFAULT_TXN_TYPE"); v != "" {
		c.DefaultTxnType = v
	}
	if v := os.Getenv("CANDIDATE_SOURCE"); v != "" {
		c.CandidateSource = v
	}
	if v := os.Getenv("RECEIPT_TABLE"); v != "" {
		c.ReceiptTable = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}
	if c.ManualMaxUploadBytes <= 0 {
		return errors.New("manual_max_upload_bytes must be positive")
	}
	if strings.TrimSpace(c.DefaultTxnType) == "" {
		return errors.New("default_txn_type is required")
	}
	c.DefaultTxnType = strings.ToUpper(strings.TrimSpace(c.DefaultTxnType))
	if c.RefCheckBatchSize <= 0 {
		c.RefCheckBatchSize = DefaultRefCheckBatch
	}
	return nil
}

// InitDB opens the postgres connection described by cfg.
func InitDB(cfg *Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database url not configured (DATABASE_URL or DB_HOST)")
	}
	gcfg := &gorm.Config{TranslateError: true}
	if cfg.LogSQL {
		gcfg.Logger = logger.Default.LogMode(logger.Info)
	} else {
		gcfg.Logger = logger.Default.LogMode(logger.Warn)
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gcfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Println("[config] database connected")
	return db, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
