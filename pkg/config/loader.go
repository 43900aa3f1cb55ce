package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type entry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache         sync.Map // reflect.Type -> *entry
	dotenvLoaded  sync.Once
	defaultDotenv = []string{".env"}
)

// LoadEnvFiles reads the given dotenv files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadEnvFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !isNotExist(err) {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrEnvFile}, errs...)...)
	}
	return nil
}

// Load parses environment variables into v and caches the result per type.
// A failed parse is cached as well; fix the environment and restart.
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvLoaded.Do(func() {
		_ = LoadEnvFiles(defaultDotenv...)
	})

	key := reflect.TypeFor[T]()
	raw, _ := cache.LoadOrStore(key, &entry{})
	e := raw.(*entry)

	e.once.Do(func() {
		var cfg T
		if err := env.Parse(&cfg); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = cfg
	})

	if e.err != nil {
		return e.err
	}
	*v = e.value.(T)
	return nil
}

// MustLoad is Load that panics on failure. Intended for main.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}

// Parse reads environment variables into a fresh T without caching.
// Variable names are looked up with prefix prepended.
func Parse[T any](prefix string) (T, error) {
	var cfg T
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: prefix}); err != nil {
		return cfg, errors.Join(ErrParsingConfig, err)
	}
	return cfg, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
