package loans

// RiskType indexes the Basel risk matrix. The zero value is unweighted, so a
// loan with no risk class carries full weight.
type RiskType int

const (
	RiskUnweighted RiskType = iota
	RiskConstruction
	RiskMortgage
	RiskGovernment
	RiskInterbank
)

// DefaultBaselMultiplier is the capital multiplier applied to equity.
const DefaultBaselMultiplier = 10.0

var riskMatrix = map[RiskType]float64{
	RiskConstruction: 0.25,
	RiskMortgage:     0.5,
	RiskGovernment:   1.0,
	RiskInterbank:    1.0,
}

// Weight returns the risk weighting for the risk type. Unweighted and unknown
// types carry full weight.
func (r RiskType) Weight() float64 {
	if w, ok := riskMatrix[r]; ok {
		return w
	}
	return 1
}

// String implements fmt.Stringer.
func (r RiskType) String() string {
	switch r {
	case RiskConstruction:
		return "construction"
	case RiskMortgage:
		return "mortgage"
	case RiskGovernment:
		return "government"
	case RiskInterbank:
		return "interbank"
	default:
		return "unweighted"
	}
}

// ParseRiskType maps a risk name back to its type.
func ParseRiskType(name string) RiskType {
	switch name {
	case "construction":
		return RiskConstruction
	case "mortgage":
		return RiskMortgage
	case "government":
		return RiskGovernment
	case "interbank":
		return RiskInterbank
	default:
		return RiskUnweighted
	}
}

// RiskWeighted returns the loan's outstanding capital scaled by its risk weight.
func (l *Loan) RiskWeighted() int64 {
	return int64(float64(l.CapitalOutstanding()) * l.Risk.Weight())
}
