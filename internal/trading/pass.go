// Package trading runs the per-account trading pass: for each enabled
// instrument, read market state through the terminal connection, consult the
// decision function, and submit an order when the decision calls for one.
package trading

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"terminal-core/internal/events"
	"terminal-core/internal/monitor"
	"terminal-core/internal/registry"
	"terminal-core/internal/strategy"
	"terminal-core/internal/terminal"
	"terminal-core/pkg/bridge"
	"terminal-core/pkg/db"
)

// Pass executes trading passes for one account namespace. Deciders are kept
// per account+instrument across cycles so their price history accumulates.
type Pass struct {
	store   ConfigStore
	audit   *db.Database // nil disables the audit trail
	bus     *events.Bus
	metrics *monitor.Metrics
	dryRun  bool

	mu       sync.Mutex
	deciders map[string]strategy.Decider
}

// NewPass wires a pass runner. audit, bus and metrics may be nil.
func NewPass(store ConfigStore, audit *db.Database, bus *events.Bus, metrics *monitor.Metrics, dryRun bool) *Pass {
	return &Pass{
		store:    store,
		audit:    audit,
		bus:      bus,
		metrics:  metrics,
		dryRun:   dryRun,
		deciders: make(map[string]strategy.Decider),
	}
}

// Run executes one pass. An instrument failure is logged and the remaining
// instruments still execute; the aggregated error reports how many failed.
// Zero enabled instruments is a no-op success.
func (p *Pass) Run(ctx context.Context, ref registry.AccountRef, sess terminal.Session) error {
	cfg, err := p.store.LoadAccountConfig(ctx, ref)
	if err != nil {
		return fmt.Errorf("pass %s: %w", ref, err)
	}

	enabled := make([]Instrument, 0, len(cfg.Instruments))
	for _, inst := range cfg.Instruments {
		if inst.Enabled {
			enabled = append(enabled, inst)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	info, err := sess.GetAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("pass %s: account info: %w", ref, err)
	}
	positions, err := sess.GetPositions(ctx, "")
	if err != nil {
		return fmt.Errorf("pass %s: positions: %w", ref, err)
	}

	// Signed net volume per symbol.
	net := make(map[string]float64, len(positions))
	for _, pos := range positions {
		v := pos.Volume
		if pos.Type == "SELL" {
			v = -v
		}
		net[pos.Symbol] += v
	}

	failed := 0
	for _, inst := range enabled {
		if err := p.runInstrument(ctx, ref, sess, inst, info.Equity, net[inst.Symbol]); err != nil {
			failed++
			log.Printf("[pass] %s %s: %v", ref, inst.Symbol, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("pass %s: %d of %d instrument(s) failed", ref, failed, len(enabled))
	}
	return nil
}

func (p *Pass) runInstrument(ctx context.Context, ref registry.AccountRef, sess terminal.Session, inst Instrument, equity, netQty float64) error {
	decider, err := p.decider(ref, inst)
	if err != nil {
		return err
	}

	quote, err := sess.GetQuote(ctx, inst.Symbol)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	sig, err := decider.Decide(strategy.MarketState{
		Symbol:      inst.Symbol,
		Bid:         quote.Bid,
		Ask:         quote.Ask,
		PositionQty: netQty,
		Equity:      equity,
	})
	if err != nil {
		return fmt.Errorf("decide: %w", err)
	}
	if sig.Action == strategy.ActionHold || sig.Volume <= 0 {
		return nil
	}

	order := bridge.OrderRequest{
		Symbol:     inst.Symbol,
		Action:     string(sig.Action),
		Volume:     sig.Volume,
		Price:      sig.Price,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		ClientID:   uuid.NewString(),
		Comment:    sig.Note,
	}

	if p.dryRun {
		log.Printf("[pass] %s %s: DRY RUN %s %.2f (%s)", ref, inst.Symbol, sig.Action, sig.Volume, sig.Note)
		p.recordOrder(ctx, ref, order, "DRY_RUN", sig.Note)
		return nil
	}

	res, err := sess.SubmitOrder(ctx, order)
	if err != nil {
		p.recordOrder(ctx, ref, order, "ERROR", err.Error())
		if p.metrics != nil {
			p.metrics.IncOrdersRejected()
		}
		return fmt.Errorf("submit order: %w", err)
	}

	log.Printf("[pass] %s %s: %s %.2f -> %s (order %s)", ref, inst.Symbol, sig.Action, sig.Volume, res.Status, res.OrderID)
	p.recordOrder(ctx, ref, order, res.Status, res.Message)
	if p.metrics != nil {
		if res.Status == "REJECTED" {
			p.metrics.IncOrdersRejected()
		} else {
			p.metrics.IncOrdersAccepted()
		}
	}
	if p.bus != nil {
		p.bus.Publish(events.TopicOrderSubmitted, events.OrderEvent{
			Namespace: string(ref.Namespace),
			AccountID: ref.Key,
			Symbol:    inst.Symbol,
			Action:    string(sig.Action),
			Volume:    sig.Volume,
			Status:    res.Status,
			At:        time.Now(),
		})
	}
	return nil
}

// decider returns the persistent decider for an account+instrument, creating
// it on first use. A changed strategy type replaces the cached instance.
func (p *Pass) decider(ref registry.AccountRef, inst Instrument) (strategy.Decider, error) {
	key := ref.String() + "/" + inst.Symbol + "/" + inst.StrategyType

	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.deciders[key]; ok {
		return d, nil
	}
	d, err := strategy.New(inst.StrategyType, inst.Parameters)
	if err != nil {
		return nil, err
	}
	p.deciders[key] = d
	return d, nil
}

// recordOrder writes the audit row; failures are logged, never propagated.
// The audit trail exists for the reconcile-on-connect step and the API, it
// never feeds back into scheduling.
func (p *Pass) recordOrder(ctx context.Context, ref registry.AccountRef, order bridge.OrderRequest, status, note string) {
	if p.audit == nil {
		return
	}
	err := p.audit.InsertOrderAudit(ctx, db.OrderAudit{
		ID:        order.ClientID,
		AccountNS: string(ref.Namespace),
		AccountID: ref.Key,
		Symbol:    order.Symbol,
		Action:    order.Action,
		Volume:    order.Volume,
		Price:     order.Price,
		Status:    status,
		Note:      note,
	})
	if err != nil {
		log.Printf("[pass] %s: order audit write failed: %v", ref, err)
	}
}
