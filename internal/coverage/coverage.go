// Package coverage holds the coverage counter model: counters, the
// method/class/source file/package/bundle tree and the builder that rolls
// analyzed classes up into a bundle.
package coverage

// CoverageStats holds coverage statistics for display and decision making.
type CoverageStats struct {
	// Overall instruction coverage percentage (0-100)
	CoveragePercentage float64 `json:"coverage_percentage" yaml:"coverage_percentage"`

	TotalLines        int `json:"total_lines" yaml:"total_lines"`
	TotalCoveredLines int `json:"covered_lines" yaml:"covered_lines"`

	TotalBranches        int `json:"total_branches" yaml:"total_branches"`
	TotalCoveredBranches int `json:"covered_branches" yaml:"covered_branches"`

	TotalMethods        int `json:"total_methods" yaml:"total_methods"`
	TotalCoveredMethods int `json:"covered_methods" yaml:"covered_methods"`
}

// Stats summarizes an element.
func Stats(e Element) *CoverageStats {
	ins := e.Counter(EntityInstruction)
	lines := e.Counter(EntityLine)
	branches := e.Counter(EntityBranch)
	methods := e.Counter(EntityMethod)
	return &CoverageStats{
		CoveragePercentage:   ins.CoveredRatio() * 100,
		TotalLines:           lines.Total(),
		TotalCoveredLines:    lines.Covered,
		TotalBranches:        branches.Total(),
		TotalCoveredBranches: branches.Covered,
		TotalMethods:         methods.Total(),
		TotalCoveredMethods:  methods.Covered,
	}
}
