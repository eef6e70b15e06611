package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// tiktokenCounter adapts tiktoken-go for the handful of backend models
// whose tokenizer is known to be cl100k_base-compatible. DeepSeek's
// public docs describe their tokenizer as "similar to GPT-4's", which is
// close enough for the collation phase's budget estimates.
type tiktokenCounter struct {
	model string
	enc   *tiktoken.Tiktoken
}

var knownEncodings = map[string]string{
	"deepseek-chat":          "cl100k_base",
	"deepseek-reasoner":      "cl100k_base",
	"deepseek/deepseek-chat": "cl100k_base",
	"deepseek/deepseek-r1":   "cl100k_base",
}

func newTiktoken(model string) (Tokenizer, bool) {
	encodingName, ok := knownEncodings[model]
	if !ok {
		for prefix, enc := range knownEncodings {
			if strings.HasPrefix(model, prefix) {
				encodingName, ok = enc, true
				break
			}
		}
	}
	if !ok {
		return nil, false
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, false
	}
	return &tiktokenCounter{model: model, enc: enc}, true
}

func (t *tiktokenCounter) CountTokens(text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *tiktokenCounter) Name() string {
	return fmt.Sprintf("tiktoken[%s]", t.model)
}
