// Package services – the learning engine.
//
// Two independent, best-effort heuristics propose new patterns for existing
// intents from conversation history. They run only for otherwise-unknown
// messages in the 0.3–0.5 confidence band; learning is an optimization, not a
// correctness requirement, so callers swallow failures after logging them.
//
// The outcome type distinguishes "nothing qualified" (a normal skip) from a
// store failure so tests can assert on cause rather than absence of effect.
package services

import (
	"context"
	"slices"

	"gorm.io/gorm"

	"github.com/avolkov/go-support-bot/internal/domain"
	"github.com/avolkov/go-support-bot/internal/intent"
	"github.com/avolkov/go-support-bot/internal/repo"
)

// LearnOutcome reports what a learning attempt did.
type LearnOutcome int

const (
	// LearnSkipped means no heuristic reached its threshold; nothing changed.
	LearnSkipped LearnOutcome = iota
	// LearnApplied means a pattern was appended to an intent and persisted.
	LearnApplied
)

// String returns a short label for logs.
func (o LearnOutcome) String() string {
	if o == LearnApplied {
		return "applied"
	}
	return "skipped"
}

// Thresholds of the two heuristics.
const (
	// frequencyMinRepeats gates the frequency heuristic: the same normalized
	// text must have classified as unknown at least this many times.
	frequencyMinRepeats = 3
	// frequencyMinVotes is the minimum neighbor votes for the winning intent.
	frequencyMinVotes = 2
	// similarityMinOverlap is the minimum shared tokens for a historical turn
	// to contribute its overlap count.
	similarityMinOverlap = 2
	// similarityMinScore is the minimum accumulated overlap for the winning
	// intent.
	similarityMinScore = 3
)

// Learner proposes intent patterns from conversation history.
type Learner struct {
	DB *gorm.DB
}

// TryLearn attempts to attribute the normalized message to an existing
// intent. When the message has repeated unclassified at least
// frequencyMinRepeats times, the frequency heuristic votes over the
// classified neighbors of each occurrence; otherwise the similarity heuristic
// accumulates token-overlap scores over all classified history.
func (l *Learner) TryLearn(ctx context.Context, normalized string) (LearnOutcome, error) {
	turns, err := repo.ListUserTurns(ctx, l.DB)
	if err != nil {
		return LearnSkipped, err
	}

	repeats := 0
	for i := range turns {
		if turns[i].Intent != nil && *turns[i].Intent == intent.Unknown &&
			intent.Normalize(turns[i].Message) == normalized {
			repeats++
		}
	}

	if repeats >= frequencyMinRepeats {
		return l.learnFromFrequency(ctx, turns, normalized)
	}
	return l.learnFromSimilarity(ctx, normalized)
}

// learnFromFrequency inspects the user turns immediately before and after
// each occurrence of the repeated text; every classified neighbor votes for
// its intent. The top intent wins when it collects frequencyMinVotes.
func (l *Learner) learnFromFrequency(ctx context.Context, turns []domain.ChatMessage, normalized string) (LearnOutcome, error) {
	votes := map[string]int{}
	order := []string{} // first-encountered order for deterministic ties

	vote := func(m *domain.ChatMessage) {
		if m.Intent == nil || *m.Intent == intent.Unknown {
			return
		}
		if _, seen := votes[*m.Intent]; !seen {
			order = append(order, *m.Intent)
		}
		votes[*m.Intent]++
	}

	for i := range turns {
		if intent.Normalize(turns[i].Message) != normalized {
			continue
		}
		if i > 0 {
			vote(&turns[i-1])
		}
		if i < len(turns)-1 {
			vote(&turns[i+1])
		}
	}

	name, count := topCandidate(votes, order)
	if count < frequencyMinVotes {
		return LearnSkipped, nil
	}
	return l.appendPattern(ctx, name, normalized, "frequency")
}

// learnFromSimilarity scores every classified historical turn by its distinct
// token overlap with the message; turns sharing at least similarityMinOverlap
// tokens add their overlap count to their intent's score. Only turns with a
// known classification participate, so the store filters them up front.
func (l *Learner) learnFromSimilarity(ctx context.Context, normalized string) (LearnOutcome, error) {
	words := intent.MessageTokens(normalized)
	if len(words) == 0 {
		return LearnSkipped, nil
	}

	turns, err := repo.ListClassifiedUserTurns(ctx, l.DB)
	if err != nil {
		return LearnSkipped, err
	}

	scores := map[string]int{}
	order := []string{}
	for i := range turns {
		m := &turns[i]
		overlap := 0
		for t := range intent.MessageTokens(intent.Normalize(m.Message)) {
			if _, ok := words[t]; ok {
				overlap++
			}
		}
		if overlap < similarityMinOverlap {
			continue
		}
		if _, seen := scores[*m.Intent]; !seen {
			order = append(order, *m.Intent)
		}
		scores[*m.Intent] += overlap
	}

	name, score := topCandidate(scores, order)
	if score < similarityMinScore {
		return LearnSkipped, nil
	}
	return l.appendPattern(ctx, name, normalized, "similarity")
}

// appendPattern records the learned pattern on the winning intent.
func (l *Learner) appendPattern(ctx context.Context, name, pattern, source string) (LearnOutcome, error) {
	added, err := addPatternToIntent(ctx, l.DB, name, pattern)
	if err != nil {
		return LearnSkipped, err
	}
	if !added {
		return LearnSkipped, nil
	}
	learnedPatternsTotal.WithLabelValues(source).Inc()
	return LearnApplied, nil
}

// topCandidate picks the highest-scoring name; ties resolve to the first
// encountered over the history scan.
func topCandidate(scores map[string]int, order []string) (string, int) {
	bestName, bestScore := "", 0
	for _, name := range order {
		if scores[name] > bestScore {
			bestName, bestScore = name, scores[name]
		}
	}
	return bestName, bestScore
}

// addPatternToIntent appends pattern to the named intent's pattern set and
// persists it. A missing intent or an already-present pattern is a no-op
// (returns false, nil). The db handle may be transaction-bound.
func addPatternToIntent(ctx context.Context, db *gorm.DB, name, pattern string) (bool, error) {
	in, err := repo.FindIntentByName(ctx, db, name)
	if err != nil {
		if err == repo.ErrNotFound || err == gorm.ErrRecordNotFound {
			return false, nil
		}
		return false, err
	}
	if slices.Contains(in.Patterns, pattern) {
		return false, nil
	}
	patterns := append(slices.Clone(in.Patterns), pattern)
	if err := repo.SaveIntentSets(ctx, db, in.ID, patterns, in.Responses); err != nil {
		return false, err
	}
	return true, nil
}
