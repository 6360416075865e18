package payment

import (
	"context"

	"vortx/internal/reliability"
)

// ReliableProcessor decorates a Processor with rate limiting and a circuit
// breaker on every call. Reads and preference expiry are idempotent and are
// also retried; preference creation is not.
type ReliableProcessor struct {
	base  Processor
	guard *reliability.Guard
}

func NewReliableProcessor(base Processor, guard *reliability.Guard) *ReliableProcessor {
	return &ReliableProcessor{base: base, guard: guard}
}

func (p *ReliableProcessor) CreatePreference(ctx context.Context, in PreferenceInput) (Preference, error) {
	if err := ValidatePreference(in); err != nil {
		return Preference{}, err
	}
	var pref Preference
	err := p.guard.Once(ctx, func() error {
		var err error
		pref, err = p.base.CreatePreference(ctx, in)
		return err
	})
	return pref, err
}

func (p *ReliableProcessor) GetPayment(ctx context.Context, id string) (Payment, error) {
	var pay Payment
	err := p.guard.Do(ctx, func() error {
		var err error
		pay, err = p.base.GetPayment(ctx, id)
		return err
	})
	return pay, err
}

// WebhookGetter fetches payments with a single guarded attempt. The
// processor redelivers notifications that were not acknowledged, so the
// webhook path does not retry on its own.
func (p *ReliableProcessor) WebhookGetter() PaymentGetter {
	return onceGetter{p}
}

type onceGetter struct {
	p *ReliableProcessor
}

func (g onceGetter) GetPayment(ctx context.Context, id string) (Payment, error) {
	var pay Payment
	err := g.p.guard.Once(ctx, func() error {
		var err error
		pay, err = g.p.base.GetPayment(ctx, id)
		return err
	})
	return pay, err
}

func (p *ReliableProcessor) ExpirePreference(ctx context.Context, preferenceID string) error {
	return p.guard.Do(ctx, func() error {
		return p.base.ExpirePreference(ctx, preferenceID)
	})
}
