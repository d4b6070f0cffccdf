package payroll

import (
	"context"
	"time"
)

type Dependencies struct {
	Store         StoreAPI
	Directory     Directory
	Engine        Engine
	Gateway       Gateway
	Renderer      Renderer
	Files         FileStore
	Notifier      Notifier
	Jobs          JobQueue
	Currency      string
	EngineTimeout time.Duration
}

// Service wires the run components around one store. Handlers talk to the
// components through it; nothing here holds run state.
type Service struct {
	store         StoreAPI
	Summaries     *Aggregator
	Runs          *Lifecycle
	Adjustments   *Adjustments
	Disbursements *Disbursements
	Exports       *Exports
}

func NewService(deps Dependencies) *Service {
	currency := deps.Currency
	if currency == "" {
		currency = "KES"
	}
	summaries := NewAggregator(deps.Store)
	runs := NewLifecycle(deps.Store, deps.Directory, deps.Engine, summaries, deps.EngineTimeout)
	return &Service{
		store:         deps.Store,
		Summaries:     summaries,
		Runs:          runs,
		Adjustments:   NewAdjustments(deps.Store, runs, summaries),
		Disbursements: NewDisbursements(deps.Store, deps.Gateway),
		Exports:       NewExports(deps.Store, deps.Directory, deps.Renderer, deps.Files, deps.Notifier, deps.Jobs, currency),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PendingActions(ctx context.Context) (int, error) {
	return s.store.PendingActions(ctx)
}
