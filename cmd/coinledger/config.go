package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/peertutor/coinledger/internal/logger"
	"github.com/peertutor/coinledger/internal/service/matching"
)

const (
	defaultListenAddr   = "localhost:8000"
	defaultLoggingLevel = logger.LevelInfo
	defaultEnvironment  = logger.EnvProduction
	defaultFeeRate      = "0.15"
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the coinledger service will be run
	ListenAddr string

	// Database to connect to
	DatabaseDSN string

	// Secret key the identity provider signs access tokens with
	SecretKey string

	// Environment
	Environment string

	// Platform cut of a completed lesson, decimal string like "0.15"
	FeeRate string

	// Flat coin cost of one matching request
	MatchCoinCost int64

	// How long a matching request stays pending before it expires
	MatchTTL time.Duration

	// Background expiry sweep period
	SweepInterval time.Duration

	// Realtime polling period for the stream endpoints
	PollInterval time.Duration
}

func NewConfig() *Config {
	return &Config{
		LogLevel:      defaultLoggingLevel,
		ListenAddr:    defaultListenAddr,
		Environment:   defaultEnvironment,
		FeeRate:       defaultFeeRate,
		MatchCoinCost: matching.DefaultCoinCost,
		MatchTTL:      matching.DefaultTTL,
		SweepInterval: time.Minute,
		PollInterval:  time.Second,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setInt64 := func(o *int64) func(value string) {
		return func(value string) {
			if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
				*o = parsed
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if parsed, err := time.ParseDuration(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":     setString(&c.ListenAddr),
		"DATABASE_URI":    setString(&c.DatabaseDSN),
		"SECRET_KEY":      setString(&c.SecretKey),
		"LOG_LEVEL":       setString(&c.LogLevel),
		"ENVIRONMENT":     setString(&c.Environment),
		"FEE_RATE":        setString(&c.FeeRate),
		"MATCH_COIN_COST": setInt64(&c.MatchCoinCost),
		"MATCH_TTL":       setDuration(&c.MatchTTL),
		"SWEEP_INTERVAL":  setDuration(&c.SweepInterval),
		"POLL_INTERVAL":   setDuration(&c.PollInterval),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("coinledger", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVar(&c.FeeRate, "fee-rate", c.FeeRate, "Platform fee rate for completed lessons")
	fs.Int64Var(&c.MatchCoinCost, "match-cost", c.MatchCoinCost, "Coin cost of one matching request")
	fs.DurationVar(&c.MatchTTL, "match-ttl", c.MatchTTL, "Pending matching request lifetime")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Expiry sweep period")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Realtime polling period")

	return fs.Parse(args)
}
