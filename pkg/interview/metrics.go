package interview

import (
	"math"
	"strings"

	"mockinterview/pkg/domain"
)

// pauseThreshold is the shortest silence between segments counted as a pause.
const pauseThreshold = 0.5

// SpeechMetrics are the timing figures derived from transcription segments.
// Nil fields could not be computed.
type SpeechMetrics struct {
	PaceWPM         *float64
	AvgPauseSeconds *float64
	PauseCount      *int
	RateConsistency *float64
}

// ComputeSpeechMetrics derives pace, pauses and speech-rate consistency.
// Text answers carry no timing, so all fields stay nil when the segments span
// no time.
func ComputeSpeechMetrics(segments []domain.Segment) SpeechMetrics {
	var m SpeechMetrics
	if len(segments) == 0 {
		return m
	}
	span := segments[len(segments)-1].End - segments[0].Start
	if span <= 0 {
		return m
	}
	words := 0
	var rates []float64
	for _, s := range segments {
		n := len(strings.Fields(s.Text))
		words += n
		if d := s.End - s.Start; d > 0 && n > 0 {
			rates = append(rates, float64(n)/d)
		}
	}
	pace := round(float64(words)/span*60, 1)
	m.PaceWPM = &pace

	pauses := 0
	var total float64
	for i := 1; i < len(segments); i++ {
		gap := segments[i].Start - segments[i-1].End
		if gap >= pauseThreshold {
			pauses++
			total += gap
		}
	}
	avg := 0.0
	if pauses > 0 {
		avg = round(total/float64(pauses), 2)
	}
	m.PauseCount = &pauses
	m.AvgPauseSeconds = &avg

	if len(rates) >= 2 {
		consistency := round(1-coefficientOfVariation(rates), 2)
		consistency = math.Max(0, math.Min(1, consistency))
		m.RateConsistency = &consistency
	}
	return m
}

func coefficientOfVariation(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	if mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
