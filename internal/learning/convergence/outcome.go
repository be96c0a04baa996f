package convergence

// Outcome summarises one generation run for coverage reporting.
// Inserted <= Produced <= Target.
type Outcome struct {
	Target        int    `json:"target"`
	Produced      int    `json:"produced"`
	Inserted      int    `json:"inserted"`
	SourceWindows int    `json:"source_windows"`
	Attempts      int    `json:"attempts"`
	Failures      int    `json:"failures"`
	State         string `json:"state"`
}

// Coverage is Produced/Target, 0 when there is no target.
func (o Outcome) Coverage() float64 {
	if o.Target <= 0 {
		return 0
	}
	c := float64(o.Produced) / float64(o.Target)
	if c > 1 {
		c = 1
	}
	return c
}

// Degraded marks a partial yield: fewer records than requested but not none.
func (o Outcome) Degraded() bool {
	return o.Produced > 0 && o.Produced < o.Target
}
