package intent

import (
	"math"
	"strings"
)

// Result is a classification outcome: the matched intent name and a
// confidence score in [0,1]. Confidence is not a calibrated probability.
type Result struct {
	Name       string
	Confidence float64
}

// Classify resolves a message against the snapshot's intents.
//
// The message is normalized first. An exact pattern match returns
// (name, 0.95) immediately without scanning further. Otherwise, whenever the
// message contains a pattern or the pattern contains the message, the
// token-overlap similarity is computed and the best-scoring pair is tracked;
// ties keep the first encountered over the snapshot's iteration order. When
// the best similarity reaches 0.5 the result is
// (name, min(0.9, 0.5 + similarity*0.4)); otherwise ("unknown", 0.1).
func Classify(snap *Snapshot, message string) Result {
	norm := Normalize(message)
	best := Result{Name: Unknown, Confidence: 0.1}
	bestSim := 0.0

	for _, in := range snap.Intents() {
		for _, pattern := range in.Patterns {
			if pattern == "" {
				continue
			}
			if norm == pattern {
				return Result{Name: in.Name, Confidence: 0.95}
			}
			if strings.Contains(norm, pattern) || strings.Contains(pattern, norm) {
				if sim := Similarity(norm, pattern); sim > bestSim {
					bestSim = sim
					best = Result{
						Name:       in.Name,
						Confidence: math.Min(0.9, 0.5+sim*0.4),
					}
				}
			}
		}
	}

	if bestSim >= 0.5 {
		return best
	}
	return Result{Name: Unknown, Confidence: 0.1}
}
