// Package mongo connects fintrack to MongoDB.
//
// Connect retries until the server answers a ping or the attempts run out.
// EnsureIndexes creates the secondary indexes the document store relies on
// for "latest by createdAt" lookups and per-user listings.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//	db, err := mongo.Database(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	store := docstore.NewMongo(db)
package mongo
