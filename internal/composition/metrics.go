// Package composition scores the framing quality of a single decoded frame.
// It has no timeline context; scores are heuristic and bounded to [0,1].
package composition

// Composition archetypes. ArchetypeUnknown is reserved for undecodable
// frames, ArchetypeUnstructured for frames no pattern fits.
const (
	ArchetypeRuleOfThirds = "rule_of_thirds"
	ArchetypeGoldenRatio  = "golden_ratio"
	ArchetypeSymmetrical  = "symmetrical"
	ArchetypeCentered     = "centered"
	ArchetypeDiagonal     = "diagonal"
	ArchetypeAsymmetrical = "asymmetrical"
	ArchetypeUnstructured = "unstructured"
	ArchetypeUnknown      = "unknown"
)

// RegionNames are the 3x3 visual-weight cells, row-major from top-left.
var RegionNames = [9]string{
	"top_left", "top_center", "top_right",
	"middle_left", "center", "middle_right",
	"bottom_left", "bottom_center", "bottom_right",
}

// Point is a normalized image coordinate in [0,1] x [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Metrics holds the framing-quality scores for one frame.
type Metrics struct {
	RuleOfThirds   float64            `json:"rule_of_thirds"`
	GoldenRatio    float64            `json:"golden_ratio"`
	Symmetry       float64            `json:"symmetry"`
	Balance        float64            `json:"balance"`
	LeadingLines   float64            `json:"leading_lines"`
	Depth          float64            `json:"depth"`
	FocusClarity   float64            `json:"focus_clarity"`
	VisualWeight   map[string]float64 `json:"visual_weight"`
	InterestPoints []Point            `json:"interest_points"`
	Archetype      string             `json:"archetype"`
}

// Zero returns the metrics reported for an undecodable frame.
func Zero() Metrics {
	weights := make(map[string]float64, len(RegionNames))
	for _, name := range RegionNames {
		weights[name] = 0
	}
	return Metrics{
		VisualWeight: weights,
		Archetype:    ArchetypeUnknown,
	}
}
