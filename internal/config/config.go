package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type AppConfig struct {
	ServerAddr string `mapstructure:"SERVER_ADDR" validate:"min=2"`
	GinMode    string `mapstructure:"GIN_MODE" validate:"oneof=debug release test"`
	// DataDir holds the bbolt file of the remote store.
	DataDir string `mapstructure:"DATA_DIR" validate:"min=1"`

	PageSize          int           `mapstructure:"PAGE_SIZE" validate:"min=1,max=1000"`
	SearchDebounce    time.Duration `mapstructure:"SEARCH_DEBOUNCE" validate:"nonzero_duration"`
	ResultCacheSize   int           `mapstructure:"RESULT_CACHE_SIZE" validate:"min=1"`
	PlaceholderPrefix string        `mapstructure:"PLACEHOLDER_PREFIX" validate:"min=1"`
	RemoteOpenTimeout time.Duration `mapstructure:"REMOTE_OPEN_TIMEOUT" validate:"nonzero_duration"`
	EventBuffer       int           `mapstructure:"EVENT_BUFFER" validate:"min=1"`
	WarmStart         bool          `mapstructure:"WARM_START"`
	ShutdownTimeout   time.Duration `mapstructure:"SHUTDOWN_TIMEOUT" validate:"nonzero_duration"`

	// PrefetchWorkers loads the first page of every section at startup; 0 disables it.
	PrefetchWorkers int `mapstructure:"PREFETCH_WORKERS" validate:"min=0,max=16"`
}

func (c *AppConfig) Validate() error {
	v := validator.New()

	_ = v.RegisterValidation("nonzero_duration", func(fl validator.FieldLevel) bool {
		if d, ok := fl.Field().Interface().(time.Duration); ok {
			return d > 0
		} else {
			return false
		}
	})
	if err := v.Struct(c); err != nil {
		return err
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8081")
	v.SetDefault("GIN_MODE", "debug")
	v.SetDefault("DATA_DIR", "./data/server")
	v.SetDefault("PAGE_SIZE", 50)
	v.SetDefault("SEARCH_DEBOUNCE", 300*time.Millisecond)
	v.SetDefault("RESULT_CACHE_SIZE", 1)
	v.SetDefault("PLACEHOLDER_PREFIX", "tmp-")
	v.SetDefault("REMOTE_OPEN_TIMEOUT", 5*time.Second)
	v.SetDefault("EVENT_BUFFER", 64)
	v.SetDefault("WARM_START", false)
	v.SetDefault("PREFETCH_WORKERS", 2)
	v.SetDefault("SHUTDOWN_TIMEOUT", 30*time.Second)
}

// LoadAppConfig reads name.ext from the first path holding it. Environment
// variables override the file; a missing file leaves defaults and env only.
func LoadAppConfig(name, ext string, paths ...string) (*AppConfig, error) {
	v := viper.New()
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetConfigName(name)
	v.SetConfigType(ext)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
