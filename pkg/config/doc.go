// Package config loads typed configuration structs from environment
// variables using github.com/caarlos0/env struct tags.
//
// A .env file in the working directory is read once on first use (values
// already present in the process environment win). Each config type is
// parsed once per process and cached; later Load calls for the same type
// return the cached copy.
//
//	type Config struct {
//		MongoURL string        `env:"MONGODB_URL,required"`
//		CacheTTL time.Duration `env:"PLAN_CACHE_TTL" envDefault:"5m"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//
// Parse skips the cache and accepts a variable prefix, which is handy in
// tests and for loading the same struct for several instances.
package config
