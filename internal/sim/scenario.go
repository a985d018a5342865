package sim

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/ledgersim/internal/loans"
)

// Scenario describes a simulation: the banks and customers that exist at
// step zero and the loans and transfers requested as the clock runs.
type Scenario struct {
	Name      string           `yaml:"name"`
	Steps     int64            `yaml:"steps" validate:"gte=0"`
	Banks     []BankSpec       `yaml:"banks" validate:"required,min=1,dive"`
	Customers []CustomerSpec   `yaml:"customers" validate:"dive"`
	Loans     []LoanSpec       `yaml:"loans" validate:"dive"`
	Transfers []TransferSpec   `yaml:"transfers" validate:"dive"`
	Rates     []RateChangeSpec `yaml:"rates" validate:"dive"`
}

// BankSpec opens a bank with paid-in capital, part of which is deposited
// with the central bank as reserves.
type BankSpec struct {
	ID       string `yaml:"id" validate:"required"`
	Capital  int64  `yaml:"capital" validate:"gte=0"`
	Reserves int64  `yaml:"reserves" validate:"gte=0,ltefield=Capital"`
}

// CustomerSpec opens a deposit account with an opening cash deposit.
type CustomerSpec struct {
	Name    string `yaml:"name" validate:"required"`
	Bank    string `yaml:"bank" validate:"required"`
	Deposit int64  `yaml:"deposit" validate:"gte=0"`
}

// LoanSpec requests a loan from a bank at a given step.
type LoanSpec struct {
	Step       int64   `yaml:"step" json:"-" validate:"gte=0"`
	Bank       string  `yaml:"bank" json:"bank" validate:"required"`
	Borrower   string  `yaml:"borrower" json:"borrower" validate:"required"`
	Amount     int64   `yaml:"amount" json:"amount" validate:"gt=0"`
	Duration   int     `yaml:"duration" json:"duration" validate:"gt=0"`
	Kind       string  `yaml:"kind" json:"kind" validate:"omitempty,oneof=SIMPLE COMPOUND VARIABLE INDEXED SOVEREIGN"`
	Risk       string  `yaml:"risk" json:"risk" validate:"omitempty,oneof=construction mortgage government interbank unweighted"`
	Rate       float64 `yaml:"rate" json:"rate" validate:"gte=0"`
	Collateral string  `yaml:"collateral" json:"collateral,omitempty"`
}

// TransferSpec moves money between two customers at a given step.
type TransferSpec struct {
	Step   int64  `yaml:"step" json:"-" validate:"gte=0"`
	From   string `yaml:"from" json:"from" validate:"required"`
	To     string `yaml:"to" json:"to" validate:"required,nefield=From"`
	Amount int64  `yaml:"amount" json:"amount" validate:"gt=0"`
	Text   string `yaml:"text" json:"text,omitempty"`
}

// RateChangeSpec moves the central bank base rate at a given step.
type RateChangeSpec struct {
	Step     int64   `yaml:"step" validate:"gte=0"`
	BaseRate float64 `yaml:"base_rate" validate:"gte=0"`
}

var (
	// ErrInvalidScenario indicates a scenario that fails validation.
	ErrInvalidScenario = errors.New("sim: invalid scenario")
	// ErrUnknownCustomer indicates a reference to a customer not declared in the scenario.
	ErrUnknownCustomer = errors.New("sim: unknown customer")
)

var validate = validator.New()

// LoadScenario decodes and validates a YAML scenario.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	if err := yaml.NewDecoder(r).Decode(&sc); err != nil {
		return nil, fmt.Errorf("sim: decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// LoadScenarioFile reads a scenario from disk.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sim: open scenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// Validate checks field constraints and cross references between banks and
// customers.
func (s *Scenario) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	banks := make(map[string]struct{}, len(s.Banks))
	for _, b := range s.Banks {
		if _, dup := banks[b.ID]; dup {
			return fmt.Errorf("%w: duplicate bank %s", ErrInvalidScenario, b.ID)
		}
		banks[b.ID] = struct{}{}
	}
	customers := make(map[string]struct{}, len(s.Customers))
	for _, c := range s.Customers {
		if _, ok := banks[c.Bank]; !ok {
			return fmt.Errorf("%w: customer %s banks at unknown bank %s", ErrInvalidScenario, c.Name, c.Bank)
		}
		if _, dup := customers[c.Name]; dup {
			return fmt.Errorf("%w: duplicate customer %s", ErrInvalidScenario, c.Name)
		}
		customers[c.Name] = struct{}{}
	}
	for _, l := range s.Loans {
		if _, ok := banks[l.Bank]; !ok {
			return fmt.Errorf("%w: loan from unknown bank %s", ErrInvalidScenario, l.Bank)
		}
		if _, ok := customers[l.Borrower]; !ok {
			return fmt.Errorf("%w: %w: %s", ErrInvalidScenario, ErrUnknownCustomer, l.Borrower)
		}
	}
	for _, t := range s.Transfers {
		for _, name := range []string{t.From, t.To} {
			if _, ok := customers[name]; !ok {
				return fmt.Errorf("%w: %w: %s", ErrInvalidScenario, ErrUnknownCustomer, name)
			}
		}
	}
	return nil
}

// ValidateRequest checks one loan or transfer request outside a scenario.
func ValidateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	return nil
}

func (l LoanSpec) kind() loans.Kind {
	if l.Kind == "" {
		return loans.KindCompound
	}
	return loans.Kind(l.Kind)
}

func (l LoanSpec) risk() loans.RiskType {
	return loans.ParseRiskType(l.Risk)
}
