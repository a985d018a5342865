package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/odyssey-erp/ledgersim/internal/shared"
)

// ErrHalted indicates an engine stopped by an accounting invariant violation.
var ErrHalted = errors.New("sim: simulation halted")

// Guard serialises access to an Engine shared by HTTP handlers and
// background jobs. The first invariant violation halts the engine for good.
type Guard struct {
	mu     sync.Mutex
	engine *Engine
	logger *slog.Logger
	halted *shared.InvariantError
}

// NewGuard wraps engine.
func NewGuard(engine *Engine, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{engine: engine, logger: logger}
}

// Do runs fn with exclusive access to the engine.
func (g *Guard) Do(fn func(*Engine) error) (err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted != nil {
		return fmt.Errorf("%w: %v", ErrHalted, g.halted)
	}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		inv, ok := shared.AsInvariant(rec)
		if !ok {
			panic(rec)
		}
		g.halted = inv
		g.logger.Error("simulation halted",
			slog.String("op", inv.Op),
			slog.String("detail", inv.Detail),
			slog.Int64("step", g.engine.Now()))
		err = fmt.Errorf("%w: %v", ErrHalted, inv)
	}()
	return fn(g.engine)
}

// Halted returns the violation that stopped the engine, nil while running.
func (g *Guard) Halted() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted == nil {
		return nil
	}
	return g.halted
}
