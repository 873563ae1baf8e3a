package progress

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/MikeSquared-Agency/iepscribe/internal/catalog"
)

// Measure is the measurement style an objective's wording implies. It is
// finer-grained than catalog.ObjectiveType, which only tracks binary vs trial.
type Measure string

const (
	MeasureTrials     Measure = "trials"
	MeasureBinary     Measure = "binary"
	MeasureRubric     Measure = "rubric"
	MeasureContinuous Measure = "continuous"
)

// ParsedObjective holds what could be read off an objective's wording.
// Zero values mean the field was not found.
type ParsedObjective struct {
	Description     string
	Measure         Measure
	TargetAccuracy  float64 // in [0,1]
	TargetSuccesses int
	TargetTrials    int
	Frequency       string
}

// Type maps the measure onto the catalog's two objective types.
func (p ParsedObjective) Type() catalog.ObjectiveType {
	if p.Measure == MeasureBinary {
		return catalog.ObjectiveBinary
	}
	return catalog.ObjectiveTrial
}

var (
	fractionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s*(?:/|out of|of)\s*(\d+)\s*(?:opportunities|trials)`),
		regexp.MustCompile(`(\d+)\s*(?:/|out of)\s*(\d+)`),
		regexp.MustCompile(`on\s+(\d+)\s*(?:/|out of|of)\s*(\d+)`),
	}
	accuracyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)%\s*(?:mastery|accuracy|proficiency)`),
		regexp.MustCompile(`(?:with|at)\s+(\d+)%`),
		regexp.MustCompile(`(\d+)\s*%`),
	}
	trialsPattern     = regexp.MustCompile(`(\d+)\s*(?:/|out of|of)\s*(\d+)`)
	continuousPattern = regexp.MustCompile(`measure|track|record|log|monitor|document`)
	assessedByPattern = regexp.MustCompile(`as (?:evaluated|determined|assessed)(?:/determined)? by\s+([^,.]+)`)
)

// Checked in order; more specific phrases come before the words they contain.
var frequencyKeywords = []struct{ keyword, label string }{
	{"formal/informal assessments at opportunity", "Formal/Informal Assessments At Opportunity"},
	{"data collection quarterly", "Data Collection Quarterly"},
	{"observation daily", "Observation Daily"},
	{"as evaluated/determined by", "As Evaluated/Determined"},
	{"at opportunity", "At Opportunity"},
	{"daily", "Daily"},
	{"weekly", "Weekly"},
	{"monthly", "Monthly"},
	{"quarterly", "Quarterly"},
}

var (
	binaryIndicators = []string{
		"yes/no", "yes or no", "success/failure", "pass/fail",
		"complete/incomplete", "completed/not completed",
	}
	rubricIndicators = []string{
		"rubric", "scoring guide", "scale of", "point scale",
		"rating of", "score of at least",
	}
)

// ParseObjective reads targets, frequency and measurement style from IEP
// objective wording such as "with 80% accuracy on 4 out of 5 trials, as
// measured weekly".
func ParseObjective(description string) ParsedObjective {
	lower := strings.ToLower(description)
	p := ParsedObjective{
		Description: strings.TrimSpace(description),
		Measure:     measureOf(lower),
		Frequency:   frequencyOf(lower),
	}
	p.TargetSuccesses, p.TargetTrials = fractionOf(lower)
	if pct, ok := accuracyOf(lower); ok {
		p.TargetAccuracy = pct / 100
	}
	return p
}

// Enrich fills gaps in o from its own description: an empty type, and a zero
// target accuracy when the wording states one (or a trial fraction).
func Enrich(o catalog.Objective) catalog.Objective {
	if o.Type != "" && o.TargetAccuracy > 0 {
		return o
	}
	p := ParseObjective(o.Description)
	if o.Type == "" {
		o.Type = p.Type()
	}
	if o.TargetAccuracy <= 0 {
		switch {
		case p.TargetAccuracy > 0 && p.TargetAccuracy <= 1:
			o.TargetAccuracy = p.TargetAccuracy
		case p.TargetTrials > 0 && p.TargetSuccesses <= p.TargetTrials:
			o.TargetAccuracy = float64(p.TargetSuccesses) / float64(p.TargetTrials)
		}
	}
	return o
}

func fractionOf(lower string) (int, int) {
	for _, re := range fractionPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		num, err1 := strconv.Atoi(m[1])
		den, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			return num, den
		}
	}
	return 0, 0
}

func accuracyOf(lower string) (float64, bool) {
	for _, re := range accuracyPatterns {
		if m := re.FindStringSubmatch(lower); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			return v, err == nil
		}
	}
	return 0, false
}

func frequencyOf(lower string) string {
	for _, f := range frequencyKeywords {
		if strings.Contains(lower, f.keyword) {
			return f.label
		}
	}
	if m := assessedByPattern.FindStringSubmatch(lower); m != nil {
		return titleCase(strings.TrimSpace(m[1]))
	}
	return ""
}

func measureOf(lower string) Measure {
	switch {
	case containsAny(lower, binaryIndicators):
		return MeasureBinary
	case containsAny(lower, rubricIndicators):
		return MeasureRubric
	case trialsPattern.MatchString(lower):
		return MeasureTrials
	case continuousPattern.MatchString(lower):
		return MeasureContinuous
	default:
		return MeasureTrials
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
