// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
)

var (
	configDir = pflag.String("config-dir", ".", "Directory containing config.toml")
	SweepOnce = pflag.Bool("sweep", false, "Runs a single expiry sweep and exits")

	validLogLevels    = []string{"debug", "info", "warn", "error", "fatal"}
	validStorageTypes = []string{"s3", "r2", "memory"}
	validDBDrivers    = []string{"sqlite", "postgres"}
)

// Every key that can be set through the environment. Env names are the key
// with dots replaced by underscores, lower or upper case.
var envKeys = []string{
	"app.log_level",

	"host.port",
	"host.base_url",
	"host.cors_origins",

	"db.driver",
	"db.dsn",

	"storage.type",
	"storage.max_usage",

	"upload.max_size_temporary",
	"upload.max_size_permanent",
	"upload.min_expiry",
	"upload.max_expiry",
	"upload.temp_dir",

	"aws.access_key",
	"aws.secret_access_key",
	"aws.region",
	"aws.bucket",
	"aws.endpoint",

	"cloudflare.account_id",
	"cloudflare.access_key_id",
	"cloudflare.secret_access_key",
	"cloudflare.bucket",
	"cloudflare.turnstile.enabled",
	"cloudflare.turnstile.secret_token",

	"admin.api_key",
	"security.rate_limit",
	"cleanup.schedule",
	"downloads.workers",
	"downloads.queue_size",
	"cache.redis_addr",
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(*configDir)

	bindEnv()
	setDefaults()

	if err := v.ReadInConfig(); err != nil {
		var notFound v.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file, %w", err)
		}

		fmt.Println("[WARNING]: config.toml not found, using defaults and environment variables only")
	}

	return validate()
}

func bindEnv() {
	for _, k := range envKeys {
		name := strings.ReplaceAll(k, ".", "_")
		v.BindEnv(k, name, strings.ToUpper(name))
	}
}

func setDefaults() {
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.base_url", "http://localhost:8080")
	v.SetDefault("host.cors_origins", "*")

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "database.db")

	v.SetDefault("storage.type", "s3")
	v.SetDefault("storage.max_usage", 10)

	v.SetDefault("upload.max_size_temporary", 200)
	v.SetDefault("upload.max_size_permanent", 50)
	v.SetDefault("upload.min_expiry", 60)
	v.SetDefault("upload.max_expiry", 30*24*60*60)

	v.SetDefault("cloudflare.turnstile.enabled", false)

	v.SetDefault("security.rate_limit", 5)
	v.SetDefault("cleanup.schedule", "@every 1m")
	v.SetDefault("downloads.workers", 2)
	v.SetDefault("downloads.queue_size", 1024)
}

// validate checks the loaded values and stores size settings in bytes under
// the matching *_bytes keys
func validate() error {
	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetString("admin.api_key") == "" {
		return errors.New("admin.api_key must be set")
	}

	if !slices.Contains(validDBDrivers, v.GetString("db.driver")) {
		return errors.New("invalid database driver provided")
	}

	if v.GetString("db.dsn") == "" {
		return errors.New("db.dsn can't be empty")
	}

	if !slices.Contains(validStorageTypes, v.GetString("storage.type")) {
		return errors.New("invalid storage type provided")
	}

	switch v.GetString("storage.type") {
	case "s3":
		if v.GetString("aws.bucket") == "" {
			return errors.New("bucket can't be empty")
		}
		if v.GetString("aws.region") == "" {
			return errors.New("region can't be empty")
		}
	case "r2":
		if v.GetString("cloudflare.account_id") == "" {
			return errors.New("account id can't be empty")
		}
		if v.GetString("cloudflare.access_key_id") == "" {
			return errors.New("account access id can't be empty")
		}
		if v.GetString("cloudflare.secret_access_key") == "" {
			return errors.New("secret access key can't be empty")
		}
		if v.GetString("cloudflare.bucket") == "" {
			return errors.New("bucket can't be empty")
		}
	case "memory":
		fmt.Println("[WARNING]: Using in-memory storage, every uploaded file is lost on restart")
	}

	if v.GetInt64("storage.max_usage") <= 0 {
		return errors.New("max usage must be bigger than 0")
	}

	if v.GetInt64("upload.max_size_temporary") <= 0 || v.GetInt64("upload.max_size_permanent") <= 0 {
		return errors.New("max upload sizes must be bigger than 0")
	}

	minExp, maxExp := v.GetInt64("upload.min_expiry"), v.GetInt64("upload.max_expiry")
	if minExp <= 0 || maxExp < minExp {
		return errors.New("upload.max_expiry must be bigger or equal to upload.min_expiry and both bigger than 0")
	}

	if _, err := cron.ParseStandard(v.GetString("cleanup.schedule")); err != nil {
		return fmt.Errorf("invalid cleanup.schedule, %w", err)
	}

	if v.GetInt("downloads.workers") <= 0 || v.GetInt("downloads.queue_size") <= 0 {
		return errors.New("download counter workers and queue size must be bigger than 0")
	}

	if v.GetInt("security.rate_limit") <= 0 {
		return errors.New("security.rate_limit must be bigger than 0")
	}

	if !v.GetBool("cloudflare.turnstile.enabled") {
		fmt.Println("[WARNING]: Cloudflare's turnstile is disabled. Uploads won't be guarded against bots")
	} else if v.GetString("cloudflare.turnstile.secret_token") == "" {
		return errors.New("turnstile secret token is missing")
	}

	// Byte values go to their own keys so validating twice can't scale the
	// configured values again
	v.Set("storage.max_usage_bytes", v.GetInt64("storage.max_usage")<<30)
	v.Set("upload.max_size_temporary_bytes", v.GetInt64("upload.max_size_temporary")<<20)
	v.Set("upload.max_size_permanent_bytes", v.GetInt64("upload.max_size_permanent")<<20)

	return nil
}
