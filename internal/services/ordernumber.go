package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// orderNumberProbeAttempts bounds how often a colliding candidate is
// regenerated before the last one is used anyway. The time+random suffix makes
// a real collision near-impossible; the probe is a belt, not the guarantee.
const orderNumberProbeAttempts = 3

// OrderNumberGeneratorDeps bundles collaborators for order number generation.
type OrderNumberGeneratorDeps struct {
	Exists func(ctx context.Context, orderNumber string) (bool, error)
	Clock  func() time.Time
	Random func() int
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// OrderNumberGenerator produces human-facing order numbers of the form
// YYYYMMDD + HHMMSS + a four digit random suffix, probing the store for
// existing numbers before settling on one.
type OrderNumberGenerator struct {
	exists func(ctx context.Context, orderNumber string) (bool, error)
	clock  func() time.Time
	random func() int
	logger func(context.Context, string, map[string]any)
}

// NewOrderNumberGenerator wires dependencies into a generator.
func NewOrderNumberGenerator(deps OrderNumberGeneratorDeps) (*OrderNumberGenerator, error) {
	if deps.Exists == nil {
		return nil, errors.New("order number generator: existence probe is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	random := deps.Random
	if random == nil {
		random = func() int {
			return rand.IntN(10000)
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OrderNumberGenerator{
		exists: deps.Exists,
		clock: func() time.Time {
			return clock().UTC()
		},
		random: random,
		logger: logger,
	}, nil
}

// Generate returns an order number unused at probe time. On repeated
// collisions it returns the last candidate rather than failing the order.
func (g *OrderNumberGenerator) Generate(ctx context.Context) (string, error) {
	var candidate string
	for attempt := 0; attempt < orderNumberProbeAttempts; attempt++ {
		candidate = g.next()
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("order number generator: probe: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		g.logger(ctx, "order.number.collision", map[string]any{
			"candidate": candidate,
			"attempt":   attempt + 1,
		})
	}
	return candidate, nil
}

func (g *OrderNumberGenerator) next() string {
	now := g.clock()
	return fmt.Sprintf("%s%s%04d", now.Format("20060102"), now.Format("150405"), g.random()%10000)
}
