package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

// runesPerToken is the estimate used when no encoding is available.
const runesPerToken = 4

// Counter counts and truncates text by tokens.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New loads the cl100k_base encoding. tiktoken fetches the BPE table on
// first use, so this can fail in offline environments; callers fall back
// to NewEstimator.
func New() (*Counter, error) {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tiktoken encoding", goerr.V("encoding", encodingName))
	}
	return &Counter{enc: enc}, nil
}

// NewEstimator returns a Counter that approximates tokens from rune count.
func NewEstimator() *Counter {
	return &Counter{}
}

// Exact reports whether counts come from the real encoding.
func (c *Counter) Exact() bool {
	return c.enc != nil
}

func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	n := utf8.RuneCountInString(text)
	return (n + runesPerToken - 1) / runesPerToken
}

// Truncate returns the longest prefix of text within limit tokens.
func (c *Counter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if c.Count(text) <= limit {
		return text
	}

	if c.enc != nil {
		tokens := c.enc.Encode(text, nil, nil)
		out := c.enc.Decode(tokens[:limit])
		// a token boundary may split a multi-byte rune
		for len(out) > 0 {
			r, size := utf8.DecodeLastRuneInString(out)
			if r != utf8.RuneError || size != 1 {
				break
			}
			out = out[:len(out)-1]
		}
		return strings.ToValidUTF8(out, "")
	}

	runes := limit * runesPerToken
	i := 0
	for pos := range text {
		if i == runes {
			return text[:pos]
		}
		i++
	}
	return text
}
