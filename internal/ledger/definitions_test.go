package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultDefinitions(t *testing.T) {
	bank := BankDefinitions()
	require.Len(t, bank, 10)
	require.Equal(t, Definition{Name: LedgerCash, Type: AccountTypeAsset, Kind: LedgerTypeCash, Single: true}, bank[0])

	names := make(map[string]bool)
	for _, def := range bank {
		names[def.Name] = def.Single
	}
	require.False(t, names[LedgerDeposit])
	require.True(t, names[LedgerNonCash])

	central := CentralBankDefinitions()
	require.NotEmpty(t, central)
	require.NoError(t, ValidateDefinitions(central))
}

func TestLoadDefinitionsRejectsBadInput(t *testing.T) {
	_, err := LoadDefinitions(strings.NewReader(`
ledgers:
  - name: cash
    type: ASSET
    kind: CASH
  - name: cash
    type: ASSET
    kind: CASH
`))
	require.ErrorIs(t, err, ErrDuplicateLedger)

	_, err = LoadDefinitions(strings.NewReader(`
ledgers:
  - name: odd
    type: SIDEWAYS
    kind: CASH
`))
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = LoadDefinitions(strings.NewReader("ledgers: []"))
	require.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = LoadDefinitions(strings.NewReader("ledgers: [unterminated"))
	require.Error(t, err)
}

func TestSequenceReset(t *testing.T) {
	seq := NewSequence(AccountIDBase)
	require.Equal(t, AccountIDBase, seq.Next())
	require.Equal(t, AccountIDBase+1, seq.Next())
	require.Equal(t, AccountIDBase+2, seq.Peek())
	seq.Reset()
	require.Equal(t, AccountIDBase, seq.Next())
}

func TestArenaResetDropsState(t *testing.T) {
	arena := NewArena()
	acct := arena.NewAccount("a", "owner", "bank")
	require.Equal(t, AccountIDBase, acct.ID)
	require.Equal(t, LoanIDBase, arena.NextLoanID())

	arena.Reset()
	_, ok := arena.Account(acct.ID)
	require.False(t, ok)
	require.Equal(t, 0, arena.Loans())
	require.Equal(t, AccountIDBase, arena.NewAccount("b", "owner", "bank").ID)
	require.Equal(t, LoanIDBase, arena.NextLoanID())
}
