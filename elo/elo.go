package elo

import (
	"errors"
	"math"
)

const (
	DefaultRating  = 1200 // Рейтинг нового игрока
	DefaultKFactor = 32   // Базовый K-фактор
	MinRating      = 100  // Рейтинг никогда не опускается ниже этого значения
)

var (
	ErrTie            = errors.New("elo: scores are equal")
	ErrInvalidKFactor = errors.New("elo: k-factor must be positive")
)

// Delta описывает изменение рейтинга одной стороны матча
type Delta struct {
	OldRating int `json:"old_rating"`
	NewRating int `json:"new_rating"`
	Change    int `json:"change"`
}

// Result содержит изменения рейтинга обеих сторон
type Result struct {
	A Delta `json:"a"`
	B Delta `json:"b"`
}

// ExpectedScore возвращает ожидаемый результат игрока против соперника (0..1)
func ExpectedScore(ratingSelf, ratingOpponent int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(ratingOpponent-ratingSelf)/400.0))
}

// ApplyMatch вычисляет новые рейтинги обеих сторон с одинаковым K-фактором
func ApplyMatch(ratingA, ratingB, scoreA, scoreB, kFactor int) (Result, error) {
	return ApplyMatchK(ratingA, ratingB, scoreA, scoreB, kFactor, kFactor)
}

// ApplyMatchK вычисляет новые рейтинги с отдельным K-фактором для каждой стороны
func ApplyMatchK(ratingA, ratingB, scoreA, scoreB, kA, kB int) (Result, error) {
	if scoreA == scoreB {
		return Result{}, ErrTie
	}
	if kA <= 0 || kB <= 0 {
		return Result{}, ErrInvalidKFactor
	}

	actualA, actualB := 0.0, 1.0
	if scoreA > scoreB {
		actualA, actualB = 1.0, 0.0
	}

	return Result{
		A: newDelta(ratingA, kA, actualA, ExpectedScore(ratingA, ratingB)),
		B: newDelta(ratingB, kB, actualB, ExpectedScore(ratingB, ratingA)),
	}, nil
}

// AdaptiveKFactor подбирает K-фактор по опыту и рейтингу игрока
func AdaptiveKFactor(rating, gamesPlayed int) int {
	switch {
	case gamesPlayed < 30:
		return 40
	case rating >= 2400:
		return 16
	case rating >= 2100:
		return 24
	default:
		return DefaultKFactor
	}
}

func newDelta(old, k int, actual, expected float64) Delta {
	next := roundHalfUp(float64(old) + float64(k)*(actual-expected))
	if next < MinRating {
		next = MinRating
	}
	return Delta{
		OldRating: old,
		NewRating: next,
		Change:    next - old,
	}
}

// roundHalfUp округляет .5 вверх, в том числе для отрицательных значений
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
