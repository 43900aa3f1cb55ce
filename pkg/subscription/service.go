package subscription

import (
	"github.com/dmitrymomot/fintrack/pkg/docstore"
	"github.com/dmitrymomot/fintrack/pkg/opqueue"
)

// Service wires every component over one store and one operation queue.
// It is constructed once per process and passed to callers explicitly.
type Service struct {
	Store     *Store
	Catalog   *Catalog
	Evaluator *Evaluator
	Ledger    *Ledger
	Notifier  *Notifier
	Projector *Projector
	Manager   *Manager
	Analytics *Aggregator
	Billing   *BillingEvents
	Sweeper   *Sweeper
}

// New builds a Service. The same options are applied to every component.
// Panics if driver or queue is nil.
func New(driver docstore.Driver, queue *opqueue.Queue, opts ...Option) *Service {
	if queue == nil {
		panic("subscription: operation queue is required")
	}

	store := NewStore(driver)
	catalog := NewCatalog(store, opts...)
	ledger := NewLedger(store, opts...)
	notifier := NewNotifier(store, opts...)
	projector := NewProjector(store, catalog, opts...)
	manager := NewManager(store, catalog, ledger, notifier, projector, queue, opts...)

	return &Service{
		Store:     store,
		Catalog:   catalog,
		Evaluator: NewEvaluator(store, catalog, opts...),
		Ledger:    ledger,
		Notifier:  notifier,
		Projector: projector,
		Manager:   manager,
		Analytics: NewAggregator(store, opts...),
		Billing:   NewBillingEvents(manager),
		Sweeper:   NewSweeper(manager),
	}
}
