// Package generator holds what the generator backends share.
package generator

import "strings"

// Markers of the assembled prompt layout.
const (
	contextMarker  = "Context:\n"
	questionMarker = "\n\nQuestion:\n"
	answerMarker   = "\n\nAnswer:"
)

// SplitPrompt recovers the context block and the question from an
// assembled prompt. ok is false when prompt does not have that layout.
func SplitPrompt(prompt string) (contextBlock, question string, ok bool) {
	c := strings.Index(prompt, contextMarker)
	q := strings.LastIndex(prompt, questionMarker)
	a := strings.LastIndex(prompt, answerMarker)
	if c < 0 || q < c || a < q {
		return "", "", false
	}
	return prompt[c+len(contextMarker) : q], prompt[q+len(questionMarker) : a], true
}
