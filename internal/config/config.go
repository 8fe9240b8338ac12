package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sync daemon.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Control ControlConfig `mapstructure:"control"`
	Store   StoreConfig   `mapstructure:"store"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	S3      S3Config      `mapstructure:"s3"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sync    SyncConfig    `mapstructure:"sync"`
}

// ControlConfig is the local HTTP surface used by the app shell.
type ControlConfig struct {
	Address string `mapstructure:"address"`
}

// StoreConfig selects the local entity store. Driver is "mongo" or "memory".
type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	URI            string        `mapstructure:"uri"`
	Name           string        `mapstructure:"name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RemoteConfig points at the fitness backend.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// AuthConfig carries an optional token to start with; normally the app shell
// posts one to the session endpoint after login.
type AuthConfig struct {
	Token string `mapstructure:"token"`
	// ExpiryLeeway treats tokens that expire within this window as already expired.
	ExpiryLeeway time.Duration `mapstructure:"expiry_leeway"`
}

// SyncConfig tunes the engines and the reachability probe.
type SyncConfig struct {
	ReachabilityInterval time.Duration `mapstructure:"reachability_interval"`
	ProbeTimeout         time.Duration `mapstructure:"probe_timeout"`
	PullOnLaunch         bool          `mapstructure:"pull_on_launch"`
	SuspendWorkouts      bool          `mapstructure:"suspend_workouts"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// store.uri -> STORE_URI, sync.probe_timeout -> SYNC_PROBE_TIMEOUT
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	var config Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
		// No file: defaults and environment only.
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, nil
}

// setDefaults also registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("control.address", "127.0.0.1:8787")
	v.SetDefault("store.driver", "mongo")
	v.SetDefault("store.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("store.name", "fitness_local")
	v.SetDefault("store.connect_timeout", "10s")
	v.SetDefault("remote.base_url", "http://localhost:8080")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "workout-images")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.expiry_leeway", "30s")
	v.SetDefault("sync.reachability_interval", "10s")
	v.SetDefault("sync.probe_timeout", "3s")
	v.SetDefault("sync.pull_on_launch", true)
	v.SetDefault("sync.suspend_workouts", false)
}
