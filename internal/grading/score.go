package grading

// Tally accumulates item results into an assessment score.
type Tally struct {
	PointsEarned   float64
	PointsPossible float64
	Correct        int
	Items          int
}

func (t *Tally) Add(r Result) {
	t.PointsEarned += r.Points
	t.PointsPossible += r.MaxPoints
	t.Items++
	if r.Correct {
		t.Correct++
	}
}

// Score is earned/possible as a percentage in [0, 100]; 0 when nothing was
// possible.
func (t Tally) Score() float64 {
	return Percent(t.PointsEarned, t.PointsPossible)
}

// Passed compares the score against a threshold on the same 0-100 scale.
func (t Tally) Passed(threshold float64) bool {
	return t.Score() >= threshold
}

func Percent(earned, possible float64) float64 {
	if possible <= 0 {
		return 0
	}
	p := earned / possible * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
