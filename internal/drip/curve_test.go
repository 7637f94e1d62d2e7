package drip_test

import (
	"testing"

	"newsboy/internal/drip"
)

func TestRevealHourDefaultCurve(t *testing.T) {
	curve := drip.Curve{MaxDaily: 24, InitialCount: 10, PerHourRate: 2}
	want := map[int]int{0: 0, 9: 0, 10: 1, 11: 1, 12: 2, 13: 2, 21: 6, 22: 7, 23: 7}
	for position, hour := range want {
		if got := curve.RevealHour(position); got != hour {
			t.Fatalf("position %d: want hour %d got %d", position, hour, got)
		}
	}
	if curve.LastHour() != 7 {
		t.Fatalf("expected last hour 7, got %d", curve.LastHour())
	}
}

func TestRevealHourIsMonotonic(t *testing.T) {
	for _, curve := range []drip.Curve{
		{MaxDaily: 24, InitialCount: 10, PerHourRate: 2},
		{MaxDaily: 40, InitialCount: 0, PerHourRate: 3},
		{MaxDaily: 5, InitialCount: 5, PerHourRate: 1},
	} {
		prev := 0
		for position := 0; position < curve.MaxDaily; position++ {
			hour := curve.RevealHour(position)
			if hour < prev {
				t.Fatalf("curve %+v: hour decreased at position %d", curve, position)
			}
			if hour < 0 || hour > 23 {
				t.Fatalf("curve %+v: hour %d out of range", curve, hour)
			}
			prev = hour
		}
	}
}
