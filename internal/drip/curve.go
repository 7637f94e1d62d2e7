package drip

// Curve describes how a day's quota is released.
type Curve struct {
	MaxDaily     int
	InitialCount int
	PerHourRate  int
}

// RevealHour returns the hour position becomes visible. The first
// InitialCount positions show at midnight; the rest follow PerHourRate per
// hour starting at hour 1.
func (c Curve) RevealHour(position int) int {
	if position < c.InitialCount {
		return 0
	}
	rate := c.PerHourRate
	if rate <= 0 {
		rate = 1
	}
	return (position-c.InitialCount)/rate + 1
}

// LastHour is the reveal hour of the final slot of a full day.
func (c Curve) LastHour() int {
	if c.MaxDaily <= 0 {
		return 0
	}
	return c.RevealHour(c.MaxDaily - 1)
}
