package app

import (
	"strings"

	"haccp-training-service/internal/domain"
)

// ScoreWeights are the points awarded per correctly answered field of a
// simulation question. The solution field is deliberately worth more than
// identifying the violation.
type ScoreWeights struct {
	Violation int `yaml:"violation" json:"violation"`
	RootCause int `yaml:"rootCause" json:"rootCause"`
	Solution  int `yaml:"solution" json:"solution"`
}

// DefaultScoreWeights mirrors the live game's tuning.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Violation: 5, RootCause: 5, Solution: 10}
}

// PerQuestion is the maximum attainable score for a single question.
func (w ScoreWeights) PerQuestion() int {
	return w.Violation + w.RootCause + w.Solution
}

// Score computes the simulation score for a run. Each answer field that
// matches the question's canonical value earns its weight. A missing answer
// or question at an index contributes zero. Pure; safe to call on every
// state change.
func Score(answers []domain.SimAnswer, questions []domain.SimQuestion, w ScoreWeights) int {
	total := 0
	for i := range questions {
		if i >= len(answers) {
			break
		}
		q := questions[i]
		a := answers[i]
		if fieldMatches(a.Violation, q.Violation) {
			total += w.Violation
		}
		if fieldMatches(a.RootCause, q.RootCause) {
			total += w.RootCause
		}
		if fieldMatches(a.Solution, q.Solution) {
			total += w.Solution
		}
	}
	return total
}

func fieldMatches(got, want string) bool {
	if want == "" {
		return false
	}
	return strings.TrimSpace(got) == want
}

// AccuracyParams parameterize the diagnostic penalty formula. The division
// policy for the irrelevant-question deduction is explicit here instead of
// hard-coded so content with unusual option counts can be tuned.
type AccuracyParams struct {
	// ResolutionSpread is the accuracy mass apportioned across resolution
	// options; each wrongly selected option costs spread/optionCount.
	ResolutionSpread float64 `yaml:"resolutionSpread" json:"resolutionSpread"`
	// IrrelevantSpread is the accuracy mass apportioned across irrelevant
	// questions; each opened one costs spread/irrelevantCount.
	IrrelevantSpread float64 `yaml:"irrelevantSpread" json:"irrelevantSpread"`
	// ScaleIrrelevantByOptions further divides the irrelevant deduction by
	// the resolution option count, matching the game's dominant code path.
	ScaleIrrelevantByOptions bool `yaml:"scaleIrrelevantByOptions" json:"scaleIrrelevantByOptions"`
}

// DefaultAccuracyParams reproduces the live formula:
// 100 - wrong*(100/options) - opened*(100/irrelevant/options).
func DefaultAccuracyParams() AccuracyParams {
	return AccuracyParams{
		ResolutionSpread:         100,
		IrrelevantSpread:         100,
		ScaleIrrelevantByOptions: true,
	}
}

// Accuracy scores a diagnostic playthrough in [0,100]. Penalties are taken
// for each incorrect resolution option selected and each irrelevant question
// opened. A zero denominator (no resolution options, or no irrelevant
// questions in the scenario) skips that penalty term entirely; the result is
// always a finite number.
func Accuracy(selectedResolutions, openedQuestions []string, scenario domain.Scenario, p AccuracyParams) float64 {
	acc := 100.0

	totalOptions := len(scenario.Resolutions)
	if totalOptions > 0 {
		wrong := 0
		for _, id := range selectedResolutions {
			if opt, ok := findResolution(scenario, id); ok && !opt.Correct {
				wrong++
			}
		}
		acc -= float64(wrong) * p.ResolutionSpread / float64(totalOptions)
	}

	totalIrrelevant := scenario.IrrelevantCount()
	if totalIrrelevant > 0 {
		opened := 0
		for _, id := range openedQuestions {
			if q, ok := findQuestion(scenario, id); ok && !q.Relevant {
				opened++
			}
		}
		unit := p.IrrelevantSpread / float64(totalIrrelevant)
		if p.ScaleIrrelevantByOptions && totalOptions > 0 {
			unit /= float64(totalOptions)
		}
		acc -= float64(opened) * unit
	}

	if acc < 0 {
		return 0
	}
	if acc > 100 {
		return 100
	}
	return acc
}

func findResolution(s domain.Scenario, id string) (domain.ResolutionOption, bool) {
	for _, opt := range s.Resolutions {
		if opt.ID == id {
			return opt, true
		}
	}
	return domain.ResolutionOption{}, false
}

func findQuestion(s domain.Scenario, id string) (domain.DiagnosticQuestion, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return domain.DiagnosticQuestion{}, false
}
