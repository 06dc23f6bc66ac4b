package prompt

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"askdocs/internal/domain"
	"askdocs/internal/logging"
)

// DefaultTemplates returns the instruction placed before the context for
// each intent.
func DefaultTemplates() map[Intent]string {
	return map[Intent]string{
		Summarization: "Summarize the document using ONLY the information in the context below.\n" +
			"You may combine and rephrase points from the context, but do not add " +
			"any external knowledge or assumptions.\n\n",
		Definition: "Answer the question using ONLY the information present in the context.\n" +
			"You may rephrase or combine sentences from the context, but do not add " +
			"external information.\n\n",
		Extractive: "List the main topics explicitly mentioned in the context below.\n" +
			"Do not infer or add new topics.\n\n",
		QA: "Answer the question using ONLY the context below.\n" +
			"If the answer cannot be answered from the context, say \"I don't know\".\n\n",
	}
}

// Result is an assembled prompt plus packing statistics.
type Result struct {
	Prompt string
	Intent Intent
	// Used is the token count of instruction, question and packed context.
	Used    int
	Packed  int
	Dropped int
}

// Assembler builds intent-aware, token-budgeted prompts.
type Assembler struct {
	classifier *Classifier
	templates  map[Intent]string
	log        logrus.FieldLogger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger used for packing decisions.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.log = l
		}
	}
}

// NewAssembler creates an assembler. Intents missing from templates use the
// default wording.
func NewAssembler(c *Classifier, templates map[Intent]string, opts ...Option) (*Assembler, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil classifier", domain.ErrInvalidConfig)
	}
	merged := DefaultTemplates()
	for in, tpl := range templates {
		if _, err := ParseIntent(string(in)); err != nil {
			return nil, err
		}
		if strings.TrimSpace(tpl) == "" {
			return nil, fmt.Errorf("%w: blank template for intent %s", domain.ErrInvalidConfig, in)
		}
		merged[in] = tpl
	}
	a := &Assembler{classifier: c, templates: merged, log: logging.Discard()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Classify exposes the assembler's intent classifier.
func (a *Assembler) Classify(question string) Intent {
	return a.classifier.Classify(question)
}

// Assemble packs passages, in the order given, into a prompt for question.
// Packing stops at the first passage that would push the token count over
// budget; that passage and all later ones are dropped.
func (a *Assembler) Assemble(question string, passages []domain.Passage, budget int, counter domain.TokenCounter) (Result, error) {
	if strings.TrimSpace(question) == "" {
		return Result{}, domain.ErrEmptyQuestion
	}
	if budget <= 0 {
		return Result{}, fmt.Errorf("%w: token budget must be positive, got %d", domain.ErrInvalidArgument, budget)
	}
	if counter == nil {
		return Result{}, fmt.Errorf("%w: nil token counter", domain.ErrInvalidArgument)
	}

	intent := a.classifier.Classify(question)
	instruction := a.templates[intent]
	used := counter.Count(instruction + question)

	blocks := make([]string, 0, len(passages))
	for _, p := range passages {
		text := strings.TrimSpace(p.Text)
		n := counter.Count(text)
		if used+n > budget {
			a.log.WithFields(logrus.Fields{"budget": budget, "context_tokens": used}).Info("context token budget reached, stopping passage packing")
			break
		}
		blocks = append(blocks, text)
		used += n
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(blocks, "\n\n"))
	b.WriteString("\n\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nAnswer:")

	res := Result{
		Prompt:  b.String(),
		Intent:  intent,
		Used:    used,
		Packed:  len(blocks),
		Dropped: len(passages) - len(blocks),
	}
	a.log.WithFields(logrus.Fields{"intent": intent, "context_tokens": used, "packed": res.Packed, "dropped": res.Dropped}).Info("prompt constructed")
	return res, nil
}
