package goOTP

import (
	"fmt"
	"reflect"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable read by [LoadConfigFromEnv].
const EnvPrefix = "GOOTP_"

// LoadConfigFromEnv overlays GOOTP_* environment variables on [DefaultConfig]
// using the env tags on [Config]. Unset variables keep their defaults. The
// result is not validated; Build does that.
func LoadConfigFromEnv() (Config, error) {
	return loadConfigFromEnv(env.Options{Prefix: EnvPrefix})
}

func loadConfigFromEnv(opts env.Options) (Config, error) {
	cfg := DefaultConfig()
	// Key material arrives as raw text, not a comma-separated byte list.
	opts.FuncMap = map[reflect.Type]env.ParserFunc{
		reflect.TypeOf([]byte(nil)): func(v string) (any, error) {
			return []byte(v), nil
		},
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
