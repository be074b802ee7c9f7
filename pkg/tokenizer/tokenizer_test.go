package tokenizer_test

import (
	"strings"
	"testing"

	"github.com/AnthonyCampos1234/Facsimile/pkg/tokenizer"
	"github.com/m-mizutani/gt"
)

func counters(t *testing.T) map[string]*tokenizer.Counter {
	result := map[string]*tokenizer.Counter{
		"estimator": tokenizer.NewEstimator(),
	}
	tok, err := tokenizer.New()
	if err != nil {
		t.Logf("tiktoken unavailable, testing estimator only: %v", err)
	} else {
		result["tiktoken"] = tok
	}
	return result
}

func TestEstimator(t *testing.T) {
	c := tokenizer.NewEstimator()
	gt.False(t, c.Exact())
	gt.Equal(t, c.Count(""), 0)
	gt.Equal(t, c.Count("abcd"), 1)
	gt.Equal(t, c.Count("abcde"), 2)
	gt.Equal(t, c.Count("日本語テキスト"), 2)

	gt.Equal(t, c.Truncate("abcdefghij", 2), "abcdefgh")
	gt.Equal(t, c.Truncate("日本語テキストです", 1), "日本語テ")
	gt.Equal(t, c.Truncate("short", 10), "short")
	gt.Equal(t, c.Truncate("anything", 0), "")
}

func TestCounter(t *testing.T) {
	text := strings.Repeat("The quarterly budget meeting moved to Thursday afternoon. ", 40)

	for name, c := range counters(t) {
		t.Run(name, func(t *testing.T) {
			total := c.Count(text)
			gt.Number(t, total).Greater(50)

			cut := c.Truncate(text, 50)
			gt.Number(t, c.Count(cut)).LessOrEqual(50)
			gt.True(t, strings.HasPrefix(text, cut))
			gt.Number(t, len(cut)).Greater(0)

			gt.Equal(t, c.Truncate("hello", 50), "hello")
		})
	}
}
