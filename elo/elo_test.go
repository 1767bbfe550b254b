package elo

import (
	"errors"
	"math"
	"testing"
)

func TestExpectedScoreComplement(t *testing.T) {
	ratings := []int{100, 400, 999, 1200, 1201, 1500, 2100, 2400, 3000}
	for _, a := range ratings {
		for _, b := range ratings {
			sum := ExpectedScore(a, b) + ExpectedScore(b, a)
			if math.Abs(sum-1) > 1e-9 {
				t.Fatalf("E(%d,%d)+E(%d,%d) = %v, want 1", a, b, b, a, sum)
			}
		}
	}
}

func TestExpectedScoreEqualRatings(t *testing.T) {
	if got := ExpectedScore(1200, 1200); got != 0.5 {
		t.Fatalf("ExpectedScore(1200,1200) = %v, want 0.5", got)
	}
	if got := ExpectedScore(1600, 1200); got <= 0.5 || got >= 1 {
		t.Fatalf("stronger player expected score out of range: %v", got)
	}
}

func TestApplyMatchEqualRatings(t *testing.T) {
	res, err := ApplyMatch(1200, 1200, 21, 15, 32)
	if err != nil {
		t.Fatal(err)
	}
	if res.A.NewRating != 1216 || res.A.Change != 16 {
		t.Fatalf("A = %+v, want 1216 (+16)", res.A)
	}
	if res.B.NewRating != 1184 || res.B.Change != -16 {
		t.Fatalf("B = %+v, want 1184 (-16)", res.B)
	}
}

func TestApplyMatchReporterLoses(t *testing.T) {
	res, err := ApplyMatch(1200, 1200, 8, 11, 32)
	if err != nil {
		t.Fatal(err)
	}
	if res.A.NewRating != 1184 || res.B.NewRating != 1216 {
		t.Fatalf("got A=%d B=%d, want 1184/1216", res.A.NewRating, res.B.NewRating)
	}
}

func TestApplyMatchFormula(t *testing.T) {
	cases := []struct {
		ra, rb, sa, sb, k int
	}{
		{1500, 1200, 21, 10, 32},
		{1200, 1500, 21, 10, 32},
		{1350, 1290, 5, 11, 24},
		{2450, 2000, 11, 9, 16},
		{1000, 1800, 11, 2, 40},
	}
	for _, c := range cases {
		res, err := ApplyMatch(c.ra, c.rb, c.sa, c.sb, c.k)
		if err != nil {
			t.Fatal(err)
		}
		actualA := 0.0
		if c.sa > c.sb {
			actualA = 1
		}
		wantA := c.ra + int(math.Floor(float64(c.k)*(actualA-ExpectedScore(c.ra, c.rb))+0.5))
		wantB := c.rb + int(math.Floor(float64(c.k)*((1-actualA)-ExpectedScore(c.rb, c.ra))+0.5))
		if res.A.NewRating != max(wantA, MinRating) || res.B.NewRating != max(wantB, MinRating) {
			t.Fatalf("%+v: got %d/%d, want %d/%d", c, res.A.NewRating, res.B.NewRating, wantA, wantB)
		}
		if res.A.Change != res.A.NewRating-res.A.OldRating {
			t.Fatalf("change mismatch: %+v", res.A)
		}
	}
}

func TestApplyMatchFloor(t *testing.T) {
	res, err := ApplyMatch(105, 105, 0, 11, 32)
	if err != nil {
		t.Fatal(err)
	}
	if res.A.NewRating != MinRating {
		t.Fatalf("A.NewRating = %d, want floor %d", res.A.NewRating, MinRating)
	}
	if res.A.Change != MinRating-105 {
		t.Fatalf("A.Change = %d, want %d", res.A.Change, MinRating-105)
	}
}

func TestApplyMatchDeterministic(t *testing.T) {
	first, _ := ApplyMatch(1432, 1187, 11, 7, 32)
	for i := 0; i < 100; i++ {
		again, _ := ApplyMatch(1432, 1187, 11, 7, 32)
		if again != first {
			t.Fatalf("run %d: %+v != %+v", i, again, first)
		}
	}
}

func TestApplyMatchErrors(t *testing.T) {
	if _, err := ApplyMatch(1200, 1200, 5, 5, 32); !errors.Is(err, ErrTie) {
		t.Fatalf("tie: got %v, want ErrTie", err)
	}
	if _, err := ApplyMatch(1200, 1200, 5, 3, 0); !errors.Is(err, ErrInvalidKFactor) {
		t.Fatalf("k=0: got %v, want ErrInvalidKFactor", err)
	}
}

func TestApplyMatchK(t *testing.T) {
	res, err := ApplyMatchK(1200, 1200, 11, 3, 40, 16)
	if err != nil {
		t.Fatal(err)
	}
	if res.A.NewRating != 1220 || res.B.NewRating != 1192 {
		t.Fatalf("got %d/%d, want 1220/1192", res.A.NewRating, res.B.NewRating)
	}
}

func TestAdaptiveKFactor(t *testing.T) {
	cases := []struct {
		rating, games, want int
	}{
		{1200, 0, 40},
		{2500, 29, 40},
		{2400, 30, 16},
		{2399, 30, 24},
		{2100, 100, 24},
		{2099, 100, 32},
		{1200, 30, 32},
	}
	for _, c := range cases {
		if got := AdaptiveKFactor(c.rating, c.games); got != c.want {
			t.Errorf("AdaptiveKFactor(%d, %d) = %d, want %d", c.rating, c.games, got, c.want)
		}
	}
}
