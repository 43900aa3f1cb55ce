// Package docstore defines the document-database contract the application
// core is written against, together with two drivers: an in-memory driver for
// tests and local development, and a MongoDB driver for production.
//
// A Driver works on raw BSON documents. Collection wraps a driver with a
// typed view that encodes and decodes Go structs using their bson tags, so
// both drivers persist exactly the same field names.
//
// # Usage
//
//	type Card struct {
//		ID     string `bson:"_id,omitempty"`
//		UserID string `bson:"userId"`
//	}
//
//	cards := docstore.NewCollection[Card](docstore.NewMemory(), "cards")
//	id, err := cards.Create(ctx, &Card{UserID: "u1"})
//
//	n, err := cards.Count(ctx, docstore.Where("userId", "u1"))
//
//	latest, err := cards.First(ctx, docstore.Where("userId", "u1").
//		OrderBy("createdAt", docstore.Desc))
//
// # Queries
//
// Queries support equality filters on top-level fields, a single ordering
// field and a limit. That is the full query surface the core relies on.
//
// # Live queries
//
// Watch delivers the full result set of a query once immediately and again
// after every write to the collection until the returned stop function is
// called or the context is cancelled. The MongoDB driver uses change streams
// and therefore requires a replica set.
package docstore
