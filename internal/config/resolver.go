// File: internal/config/resolver.go
package config

import (
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Resolver reads named options with typed defaults. A missing or malformed value is never an
// error: the default is returned and a warning is logged.
type Resolver struct {
	v      *viper.Viper
	logger *zap.Logger
}

// NewResolver creates a Resolver over v. A nil logger discards warnings.
func NewResolver(v *viper.Viper, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{v: v, logger: logger.Named("config")}
}

// Int returns key as an int.
func (r *Resolver) Int(key string, def int) int {
	raw, ok := r.lookup(key, def)
	if !ok {
		return def
	}
	n, err := cast.ToIntE(raw)
	if err != nil {
		r.warnInvalid(key, raw, def, err)
		return def
	}
	return n
}

// PositiveInt is Int that additionally rejects values below 1.
func (r *Resolver) PositiveInt(key string, def int) int {
	n := r.Int(key, def)
	if n < 1 {
		r.logger.Warn("Configuration value must be positive; using default.",
			zap.String("key", key), zap.Int("value", n), zap.Int("default", def))
		return def
	}
	return n
}

// NonNegativeInt is Int that additionally rejects negative values.
func (r *Resolver) NonNegativeInt(key string, def int) int {
	n := r.Int(key, def)
	if n < 0 {
		r.logger.Warn("Configuration value must not be negative; using default.",
			zap.String("key", key), zap.Int("value", n), zap.Int("default", def))
		return def
	}
	return n
}

// Duration returns key as a duration. Bare integers are read as nanoseconds, as cast does.
func (r *Resolver) Duration(key string, def time.Duration) time.Duration {
	raw, ok := r.lookup(key, def)
	if !ok {
		return def
	}
	d, err := cast.ToDurationE(raw)
	if err != nil {
		r.warnInvalid(key, raw, def, err)
		return def
	}
	return d
}

// Bool returns key as a bool.
func (r *Resolver) Bool(key string, def bool) bool {
	raw, ok := r.lookup(key, def)
	if !ok {
		return def
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		r.warnInvalid(key, raw, def, err)
		return def
	}
	return b
}

// String returns key as a string.
func (r *Resolver) String(key string, def string) string {
	raw, ok := r.lookup(key, def)
	if !ok {
		return def
	}
	s, err := cast.ToStringE(raw)
	if err != nil {
		r.warnInvalid(key, raw, def, err)
		return def
	}
	return s
}

func (r *Resolver) lookup(key string, def any) (any, bool) {
	if r.v == nil || !r.v.IsSet(key) {
		r.logger.Warn("Configuration value missing; using default.", zap.String("key", key), zap.Any("default", def))
		return nil, false
	}
	raw := r.v.Get(key)
	if raw == nil {
		r.logger.Warn("Configuration value empty; using default.", zap.String("key", key), zap.Any("default", def))
		return nil, false
	}
	return raw, true
}

func (r *Resolver) warnInvalid(key string, raw, def any, err error) {
	r.logger.Warn("Configuration value invalid; using default.",
		zap.String("key", key),
		zap.Any("value", raw),
		zap.Any("default", def),
		zap.Error(err))
}
