package scoring

// Inputs is one developer's aggregated metric input, produced by the
// scorecard builder from that developer's project set.
type Inputs struct {
	Operational     int
	Withdrawn       int
	TotalProjects   int
	AvgTimelineDays *float64 // nil when no usable queue->COD pair exists
	Regions         int
	FuelTypes       int
	Active          int
	YearsSinceFirst float64
}

// Resolved returns the count of projects with a terminal outcome.
func (in Inputs) Resolved() int {
	return in.Operational + in.Withdrawn
}

// SubScores holds the seven normalized metric scores, each in [0,100].
type SubScores struct {
	Completion float64 `json:"completion_rate_score"`
	Timeline   float64 `json:"timeline_score"`
	Volume     float64 `json:"volume_score"`
	Breadth    float64 `json:"breadth_score"`
	Diversity  float64 `json:"diversity_score"`
	Pipeline   float64 `json:"pipeline_score"`
	Depth      float64 `json:"depth_score"`
}
