// Package config handles pre-database configuration, such as the location of
// the database.  Allocation settings (instructors, slots, capacity) live in
// the database, not here.
package config

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Viper-based config loader
func Init() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetConfigType("yaml")
	viper.SetConfigName(".hostsel")
	viper.AddConfigPath(home)
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	viper.BindEnv("db_url", "HOSTSEL_DB_URL")
	viper.BindEnv("sql_connector", "HOSTSEL_SQL_CONNECTOR")
	viper.BindEnv("seed", "HOSTSEL_SEED")
	viper.BindEnv("log_level", "HOSTSEL_LOG_LEVEL")
	viper.BindEnv("settings_ttl", "HOSTSEL_SETTINGS_TTL")
	viper.BindEnv("run_cache_size", "HOSTSEL_RUN_CACHE_SIZE")
	viper.SetDefault("db_url", "postgresql:///hostsel")
	viper.SetDefault("sql_connector", "pgx")
	viper.SetDefault("seed", 0)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("settings_ttl", 30*time.Minute)
	viper.SetDefault("run_cache_size", 16)
	err = viper.ReadInConfig() // ignore error if config file missing
	if err != nil {
		log.Debugf("viper can't read config file: %v", err)
	}

	if lvl, err := log.ParseLevel(LogLevel()); err != nil {
		log.Warnf("bad log_level %q, keeping %v", LogLevel(), log.GetLevel())
	} else {
		log.SetLevel(lvl)
	}
	log.Debugf("Using database URL: %s", DBURL())
}

func DBURL() string {
	return viper.GetString("db_url")
}

func SQLConnector() string {
	return viper.GetString("sql_connector")
}

// Seed for the allocation shuffle; 0 means pick one per run.
func Seed() int64 {
	return viper.GetInt64("seed")
}

func LogLevel() string {
	return viper.GetString("log_level")
}

// SettingsTTL is how long cached settings are trusted.
func SettingsTTL() time.Duration {
	return viper.GetDuration("settings_ttl")
}

func RunCacheSize() int {
	return viper.GetInt("run_cache_size")
}
