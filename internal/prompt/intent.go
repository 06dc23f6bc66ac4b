package prompt

import (
	"fmt"
	"strings"

	"askdocs/internal/domain"
)

// Intent is the kind of answer a question asks for.
type Intent string

const (
	Summarization Intent = "summarization"
	Definition    Intent = "definition"
	Extractive    Intent = "extractive"
	QA            Intent = "qa"
)

// Intents lists every intent, fallback last.
var Intents = []Intent{Summarization, Definition, Extractive, QA}

// ParseIntent converts a config string to an Intent.
func ParseIntent(s string) (Intent, error) {
	for _, in := range Intents {
		if string(in) == strings.ToLower(strings.TrimSpace(s)) {
			return in, nil
		}
	}
	return "", fmt.Errorf("%w: unknown intent %q", domain.ErrInvalidConfig, s)
}

// Rule maps a set of keywords to an intent. A question matches when its
// lower-cased text contains any keyword as a substring.
type Rule struct {
	Intent   Intent   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
}

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		{Intent: Summarization, Keywords: []string{"summarize", "summary", "overview"}},
		{Intent: Definition, Keywords: []string{"what is", "define", "explain"}},
		{Intent: Extractive, Keywords: []string{"list", "topics", "mentioned"}},
	}
}

// Classifier evaluates rules in order; the first match wins and QA is
// returned when nothing matches.
type Classifier struct {
	rules []Rule
}

// NewClassifier validates and copies rules. Keywords are lower-cased.
func NewClassifier(rules []Rule) (*Classifier, error) {
	c := &Classifier{rules: make([]Rule, 0, len(rules))}
	for i, r := range rules {
		in, err := ParseIntent(string(r.Intent))
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, k := range r.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				return nil, fmt.Errorf("%w: rule %d has a blank keyword", domain.ErrInvalidConfig, i)
			}
			kws = append(kws, k)
		}
		if len(kws) == 0 {
			return nil, fmt.Errorf("%w: rule %d (%s) has no keywords", domain.ErrInvalidConfig, i, in)
		}
		c.rules = append(c.rules, Rule{Intent: in, Keywords: kws})
	}
	return c, nil
}

// Classify returns the intent of question.
func (c *Classifier) Classify(question string) Intent {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, r := range c.rules {
		for _, k := range r.Keywords {
			if strings.Contains(q, k) {
				return r.Intent
			}
		}
	}
	return QA
}
