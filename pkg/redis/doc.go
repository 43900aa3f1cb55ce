// Package redis connects to Redis and wraps a client in a small key-value
// Storage with context-aware calls and prefix scoping.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := redis.NewStorage(client, redis.WithPrefix("fintrack:plans:"))
package redis
