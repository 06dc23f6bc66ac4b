package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"askdocs/internal/domain"
)

// FallbackEncoding is used for models tiktoken has no mapping for.
const FallbackEncoding = "cl100k_base"

func init() {
	// BPE ranks ship inside the binary instead of being fetched on first use.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Tiktoken counts tokens exactly as an OpenAI model's BPE encoding does.
type Tiktoken struct {
	enc *tiktoken.Tiktoken
}

// NewTiktoken returns the counter for model. Unknown or empty model names
// use FallbackEncoding.
func NewTiktoken(model string) (*Tiktoken, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &Tiktoken{enc: enc}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("%w: tiktoken encoding %s: %v", domain.ErrInvalidConfig, FallbackEncoding, err)
	}
	return &Tiktoken{enc: enc}, nil
}

// Count returns the number of BPE tokens in text.
func (t *Tiktoken) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}
