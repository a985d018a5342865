package ledger

import (
	"embed"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultsFS embed.FS

// Definition is one ledger tuple: name, side, kind, and whether the ledger
// holds a single internal account.
type Definition struct {
	Name   string      `yaml:"name" validate:"required"`
	Type   AccountType `yaml:"type" validate:"required,oneof=ASSET LIABILITY EQUITY"`
	Kind   LedgerType  `yaml:"kind" validate:"required,oneof=LOAN CAPITAL DEPOSIT CASH"`
	Single bool        `yaml:"single"`
}

type definitionFile struct {
	Ledgers []Definition `yaml:"ledgers" validate:"required,min=1,dive"`
}

var validate = validator.New()

// LoadDefinitions decodes and validates a YAML ledger definition document.
func LoadDefinitions(r io.Reader) ([]Definition, error) {
	var doc definitionFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("ledger: decode definitions: %w", err)
	}
	if err := ValidateDefinitions(doc.Ledgers); err != nil {
		return nil, err
	}
	return doc.Ledgers, nil
}

// ValidateDefinitions checks every tuple and rejects duplicate names.
func ValidateDefinitions(defs []Definition) error {
	if err := validate.Struct(definitionFile{Ledgers: defs}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}
	seen := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if _, ok := seen[def.Name]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateLedger, def.Name)
		}
		seen[def.Name] = struct{}{}
	}
	return nil
}

// BankDefinitions returns the standard commercial bank ledgers.
func BankDefinitions() []Definition {
	return mustLoadDefault("defaults/ledgers.yaml")
}

// CentralBankDefinitions returns the central bank's own ledgers.
func CentralBankDefinitions() []Definition {
	return mustLoadDefault("defaults/central.yaml")
}

func mustLoadDefault(name string) []Definition {
	f, err := defaultsFS.Open(name)
	if err != nil {
		panic(fmt.Sprintf("ledger: embedded %s: %v", name, err))
	}
	defer f.Close()
	defs, err := LoadDefinitions(f)
	if err != nil {
		panic(fmt.Sprintf("ledger: embedded %s: %v", name, err))
	}
	return defs
}
