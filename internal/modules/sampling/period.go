package sampling

import "fmt"

// PeriodUnit tags the unit of a sampling period.
type PeriodUnit int

const (
	UnitDays PeriodUnit = iota
	UnitMonths
	UnitYears
)

func (u PeriodUnit) String() string {
	switch u {
	case UnitDays:
		return "days"
	case UnitMonths:
		return "months"
	case UnitYears:
		return "years"
	default:
		return "unknown"
	}
}

// Period is an explicit unit-tagged duration parsed from a period token.
// Keeping the unit alongside the magnitude avoids the string-slicing trap
// where "3mo" would silently be read as 3 years.
type Period struct {
	N    int
	Unit PeriodUnit
}

// acceptedPeriods maps every accepted period token to its parsed form.
// The token set is fixed by the upstream market-data vendor.
var acceptedPeriods = map[string]Period{
	"1d":  {N: 1, Unit: UnitDays},
	"5d":  {N: 5, Unit: UnitDays},
	"1mo": {N: 1, Unit: UnitMonths},
	"3mo": {N: 3, Unit: UnitMonths},
	"6mo": {N: 6, Unit: UnitMonths},
	"1y":  {N: 1, Unit: UnitYears},
	"2y":  {N: 2, Unit: UnitYears},
	"5y":  {N: 5, Unit: UnitYears},
	"10y": {N: 10, Unit: UnitYears},
}

// AcceptedPeriodTokens returns the accepted tokens in a stable order,
// for error messages.
func AcceptedPeriodTokens() []string {
	return []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y"}
}

// ParsePeriod parses an accepted period token into a Period.
func ParsePeriod(token string) (Period, error) {
	p, ok := acceptedPeriods[token]
	if !ok {
		return Period{}, fmt.Errorf("unknown period token %q, accepted values: %v", token, AcceptedPeriodTokens())
	}
	return p, nil
}

// Token renders the period back to its token form.
func (p Period) Token() string {
	switch p.Unit {
	case UnitDays:
		return fmt.Sprintf("%dd", p.N)
	case UnitMonths:
		return fmt.Sprintf("%dmo", p.N)
	default:
		return fmt.Sprintf("%dy", p.N)
	}
}

func (p Period) String() string {
	return p.Token()
}
