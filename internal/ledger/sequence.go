package ledger

// Account and loan id bases.
const (
	AccountIDBase int64 = 1000000
	LoanIDBase    int64 = 1
)

// Sequence allocates monotonically increasing ids from a base.
type Sequence struct {
	base int64
	next int64
}

// NewSequence returns a sequence whose first id is base.
func NewSequence(base int64) *Sequence {
	return &Sequence{base: base, next: base}
}

// Next returns the next id.
func (s *Sequence) Next() int64 {
	id := s.next
	s.next++
	return id
}

// Peek returns the id Next would return without consuming it.
func (s *Sequence) Peek() int64 { return s.next }

// Reset rewinds the sequence to its base for a simulation restart.
func (s *Sequence) Reset() { s.next = s.base }
