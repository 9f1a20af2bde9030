package quota

// Category values accepted in the "disadvantaged" request field.
const (
	CategoryLowIncome = "Lowincome"
	CategoryNearPoor  = "Nearpoor"
)

var tierLimits = map[string]Allowance{
	CategoryLowIncome: {Water: 3, Meals: 2},
	CategoryNearPoor:  {Water: 2, Meals: 1},
}

// LimitsFor returns the daily allowance for a category. Unknown categories
// get nothing.
func LimitsFor(category string) Allowance {
	return tierLimits[category]
}
