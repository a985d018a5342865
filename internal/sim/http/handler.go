package simhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/ledgersim/internal/bank"
	"github.com/odyssey-erp/ledgersim/internal/ledger"
	"github.com/odyssey-erp/ledgersim/internal/loans"
	"github.com/odyssey-erp/ledgersim/internal/platform/httpx"
	"github.com/odyssey-erp/ledgersim/internal/sim"
)

// maxStepsPerRequest bounds how far one POST /step may advance the clock.
const maxStepsPerRequest = 3600

// SheetCache caches balance sheets per step.
type SheetCache interface {
	BalanceSheets(ctx context.Context, step int64, build func(context.Context) ([]bank.BalanceSheet, error)) ([]bank.BalanceSheet, error)
	Bump(ctx context.Context) error
}

// Handler exposes a running simulation over HTTP.
type Handler struct {
	logger *slog.Logger
	sim    *sim.Guard
	cache  SheetCache
}

// NewHandler wraps the guarded engine. cache may be nil.
func NewHandler(logger *slog.Logger, guard *sim.Guard, cache SheetCache) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, sim: guard, cache: cache}
}

type loanView struct {
	ID                 int64      `json:"id"`
	Kind               loans.Kind `json:"kind"`
	Risk               string     `json:"risk"`
	Rate               float64    `json:"rate"`
	Amount             int64      `json:"amount"`
	Periods            int        `json:"periods"`
	Frequency          int        `json:"frequency"`
	Start              int64      `json:"start"`
	CapitalOutstanding int64      `json:"capital_outstanding"`
	NextRepayment      [2]int64   `json:"next_repayment"`
}

func newLoanView(l *loans.Loan) *loanView {
	return &loanView{
		ID:                 l.ID,
		Kind:               l.Kind,
		Risk:               l.Risk.String(),
		Rate:               l.Rate,
		Amount:             l.Amount(),
		Periods:            l.Periods(),
		Frequency:          l.Frequency,
		Start:              l.Start,
		CapitalOutstanding: l.CapitalOutstanding(),
		NextRepayment:      l.NextRepayment(),
	}
}

type decisionView struct {
	Approved bool         `json:"approved"`
	Reason   bank.Refusal `json:"reason,omitempty"`
	Loan     *loanView    `json:"loan,omitempty"`
}

type transferView struct {
	Completed bool `json:"completed"`
}

type stepRequest struct {
	Steps int64 `json:"steps"`
}

type stepView struct {
	Step  int64     `json:"step"`
	Stats sim.Stats `json:"stats"`
}

func generalLedger(e *sim.Engine, id string) (*ledger.GeneralLedger, error) {
	cb := e.CentralBank()
	if id == bank.CentralName {
		return cb.GL, nil
	}
	b, err := cb.Bank(id)
	if err != nil {
		return nil, err
	}
	return b.GL, nil
}

func (h *Handler) handleBalanceSheets(w http.ResponseWriter, r *http.Request) {
	var sheets []bank.BalanceSheet
	err := h.sim.Do(func(e *sim.Engine) error {
		build := func(context.Context) ([]bank.BalanceSheet, error) {
			return e.BalanceSheets(), nil
		}
		if h.cache == nil {
			sheets, _ = build(r.Context())
			return nil
		}
		var err error
		sheets, err = h.cache.BalanceSheets(r.Context(), e.Now(), build)
		return err
	})
	if err != nil {
		h.respondError(w, "load balance sheets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheets)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	var sheet bank.BalanceSheet
	err := h.sim.Do(func(e *sim.Engine) error {
		b, err := e.CentralBank().Bank(chi.URLParam(r, "bankID"))
		if err != nil {
			return err
		}
		sheet = b.BalanceSheet()
		return nil
	})
	if err != nil {
		h.respondError(w, "load balance sheet", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) handleLedgers(w http.ResponseWriter, r *http.Request) {
	var report ledger.AuditReport
	err := h.sim.Do(func(e *sim.Engine) error {
		gl, err := generalLedger(e, chi.URLParam(r, "bankID"))
		if err != nil {
			return err
		}
		report = gl.Audit(nil)
		return nil
	})
	if err != nil {
		h.respondError(w, "load ledgers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleLoans(w http.ResponseWriter, r *http.Request) {
	var views []*loanView
	err := h.sim.Do(func(e *sim.Engine) error {
		b, err := e.CentralBank().Bank(chi.URLParam(r, "bankID"))
		if err != nil {
			return err
		}
		views = make([]*loanView, 0)
		for _, l := range b.Loans() {
			views = append(views, newLoanView(l))
		}
		return nil
	})
	if err != nil {
		h.respondError(w, "list loans", err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) handleTransactionsCSV(w http.ResponseWriter, r *http.Request) {
	bankID := chi.URLParam(r, "bankID")
	name := chi.URLParam(r, "ledger")
	err := h.sim.Do(func(e *sim.Engine) error {
		gl, err := generalLedger(e, bankID)
		if err != nil {
			return err
		}
		l, err := gl.Ledger(name)
		if err != nil {
			return err
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", bankID+"-"+name+".csv"))
		if err := l.WriteCSV(w); err != nil {
			h.logger.Warn("write csv", slog.Any("error", err))
		}
		return nil
	})
	if err != nil {
		h.respondError(w, "export transactions", err)
	}
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	var reports []ledger.AuditReport
	err := h.sim.Do(func(e *sim.Engine) error {
		reports = e.Audit(nil)
		return nil
	})
	if err != nil {
		h.respondError(w, "audit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, reports)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	var stats sim.Stats
	err := h.sim.Do(func(e *sim.Engine) error {
		stats = e.Stats()
		return nil
	})
	if err != nil {
		h.respondError(w, "stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleRequestLoan(w http.ResponseWriter, r *http.Request) {
	var spec sim.LoanSpec
	if err := httpx.DecodeJSON(w, r, &spec); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := sim.ValidateRequest(spec); err != nil {
		h.respondError(w, "validate loan", err)
		return
	}
	var view decisionView
	err := h.sim.Do(func(e *sim.Engine) error {
		decision, err := e.Lend(spec)
		if err != nil {
			return err
		}
		view = decisionView{Approved: decision.Approved(), Reason: decision.Reason}
		if decision.Loan != nil {
			view.Loan = newLoanView(decision.Loan)
		}
		return nil
	})
	if err != nil {
		h.respondError(w, "request loan", err)
		return
	}
	status := http.StatusOK
	if view.Approved {
		status = http.StatusCreated
		h.bump(r.Context())
	}
	httpx.JSON(w, status, view)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var spec sim.TransferSpec
	if err := httpx.DecodeJSON(w, r, &spec); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := sim.ValidateRequest(spec); err != nil {
		h.respondError(w, "validate transfer", err)
		return
	}
	if spec.Text == "" {
		spec.Text = "transfer"
	}
	var view transferView
	err := h.sim.Do(func(e *sim.Engine) error {
		ok, err := e.Transfer(spec.From, spec.To, spec.Amount, spec.Text)
		view.Completed = ok
		return err
	})
	if err != nil {
		h.respondError(w, "transfer", err)
		return
	}
	if view.Completed {
		h.bump(r.Context())
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) handleStep(w http.ResponseWriter, r *http.Request) {
	req := stepRequest{Steps: 1}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	if req.Steps <= 0 || req.Steps > maxStepsPerRequest {
		httpx.RespondError(w, fmt.Errorf("%w: steps must be within [1, %d]", httpx.ErrValidation, maxStepsPerRequest))
		return
	}
	var view stepView
	err := h.sim.Do(func(e *sim.Engine) error {
		if err := e.Run(r.Context(), req.Steps); err != nil {
			return err
		}
		view = stepView{Step: e.Now(), Stats: e.Stats()}
		return nil
	})
	if err != nil {
		h.respondError(w, "step", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) bump(ctx context.Context) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Bump(ctx); err != nil {
		h.logger.Warn("bump snapshot cache", slog.Any("error", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	mapped := mapError(err)
	switch {
	case errors.Is(mapped, httpx.ErrValidation), errors.Is(mapped, httpx.ErrNotFound), errors.Is(mapped, httpx.ErrUnavailable):
	default:
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, sim.ErrInvalidScenario),
		errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrNotCustomer),
		errors.Is(err, loans.ErrNoPayments),
		errors.Is(err, loans.ErrInvalidAmount),
		errors.Is(err, loans.ErrInvalidRate),
		errors.Is(err, loans.ErrUnknownKind),
		errors.Is(err, loans.ErrDegenerateSchedule):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, sim.ErrUnknownCustomer),
		errors.Is(err, bank.ErrUnknownBank),
		errors.Is(err, bank.ErrUnknownAccount),
		errors.Is(err, ledger.ErrUnknownLedger):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, sim.ErrHalted):
		return fmt.Errorf("%w: %v", httpx.ErrUnavailable, err)
	}
	return err
}
