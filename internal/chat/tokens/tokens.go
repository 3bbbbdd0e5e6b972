package tokens

import (
	"strings"
	"sync"
	"unicode/utf8"

	errx "github.com/dashgpt/server/internal/core/error"
	"github.com/pkoukk/tiktoken-go"
)

// encoder is the subset of *tiktoken.Tiktoken the counter needs.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

var encodings sync.Map // model name -> encoder

// loadEncoding fetches an encoding by name. Replaced in tests.
var loadEncoding = func(name string) (encoder, error) {
	return tiktoken.GetEncoding(name)
}

// encodingName resolves a model to its encoding, preferring an exact match
// and then the longest known prefix.
func encodingName(modelName string) (string, bool) {
	if name, ok := tiktoken.MODEL_TO_ENCODING[modelName]; ok {
		return name, true
	}
	var best, name string
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(modelName, prefix) && len(prefix) > len(best) {
			best, name = prefix, enc
		}
	}
	return name, best != ""
}

func encodingFor(modelName string) (encoder, error) {
	if enc, ok := encodings.Load(modelName); ok {
		return enc.(encoder), nil
	}
	name, ok := encodingName(modelName)
	if !ok {
		return nil, errx.UnsupportedModel(modelName, nil)
	}
	enc, err := loadEncoding(name)
	if err != nil {
		return nil, errx.Tokenizer(name, err)
	}
	actual, _ := encodings.LoadOrStore(modelName, enc)
	return actual.(encoder), nil
}

// Count returns the number of tokens text occupies under modelName's encoding.
func Count(text, modelName string) (int, error) {
	enc, err := encodingFor(modelName)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Counter is bound to one model's encoding. Safe for concurrent use.
type Counter struct {
	model string
	enc   encoder
}

func NewCounter(modelName string) (*Counter, error) {
	enc, err := encodingFor(modelName)
	if err != nil {
		return nil, err
	}
	return &Counter{model: modelName, enc: enc}, nil
}

func (c *Counter) Model() string {
	return c.model
}

func (c *Counter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Tail returns the trailing n tokens of text, decoded. Text of n tokens or
// fewer is returned unchanged. A multi-byte character split by the cut is
// dropped.
func (c *Counter) Tail(text string, n int) string {
	if n <= 0 {
		return ""
	}
	toks := c.enc.Encode(text, nil, nil)
	if len(toks) <= n {
		return text
	}
	return trimPartialRune(c.enc.Decode(toks[len(toks)-n:]))
}

func trimPartialRune(s string) string {
	for len(s) > 0 && !utf8.RuneStart(s[0]) {
		s = s[1:]
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}
