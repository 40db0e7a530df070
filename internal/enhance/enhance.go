// Package enhance asks an LLM for fields the rule-based strategies missed.
// Answers become ordinary candidates that still pass through the
// anti-pattern filter.
package enhance

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/program-extract/internal/confidence"
	"github.com/sells-group/program-extract/internal/model"
	"github.com/sells-group/program-extract/internal/resilience"
	"github.com/sells-group/program-extract/pkg/anthropic"
)

// MaxConfidence caps the confidence of AI-sourced candidates.
const MaxConfidence = 0.7

const (
	defaultMaxChars   = 12000
	defaultConfidence = 0.5
	unverifiedPenalty = 0.8
	snippetRadius     = 120
)

// Config tunes the enhancer.
type Config struct {
	Model     string
	MaxTokens int64
	// MaxChars bounds the page text sent to the model.
	MaxChars int
}

// Enhancer fills missing fields with one Messages call per page.
type Enhancer struct {
	client  anthropic.Client
	cfg     Config
	breaker *resilience.Breaker
}

// New creates an Enhancer. The breaker opens after three consecutive
// failures and stays open for a minute.
func New(client anthropic.Client, cfg Config) *Enhancer {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	return &Enhancer{
		client:  client,
		cfg:     cfg,
		breaker: resilience.NewBreaker("anthropic", 3, time.Minute),
	}
}

type answer struct {
	Value      any      `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// Enhance returns ai-enhancement candidates for fields found in text. A
// value that does not occur in the text is kept at reduced confidence.
func (e *Enhancer) Enhance(ctx context.Context, pageURL, text string, fields []*model.Field) ([]model.CandidateResult, error) {
	if len(fields) == 0 || strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var resp *anthropic.MessageResponse
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		resp, err = e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    anthropic.CachedSystem(systemPrompt),
			Messages:  []anthropic.Message{{Role: "user", Content: buildPrompt(fields, truncate(text, e.cfg.MaxChars))}},
		})
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "enhance: create message")
	}
	resp.Usage.LogCost(e.cfg.Model, "enhance")

	var raw map[string]answer
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &raw); err != nil {
		return nil, eris.Wrap(err, "enhance: parse answer")
	}

	domain := model.DomainOf(pageURL)
	var out []model.CandidateResult
	for _, f := range fields {
		a, ok := raw[f.ID]
		if !ok {
			continue
		}
		conf := defaultConfidence
		if a.Confidence != nil {
			conf = *a.Confidence
		}
		for _, v := range values(a.Value) {
			c := model.CandidateResult{
				Field:      f.ID,
				Value:      v,
				Strategy:   confidence.SourceAI,
				Confidence: min(conf, MaxConfidence),
				Context: model.ExtractionContext{
					Source: confidence.SourceAI,
					URL:    pageURL,
					Domain: domain,
				},
			}
			if snippet, found := surrounding(text, v); found {
				c.Context.SurroundingText = snippet
			} else {
				c.Confidence *= unverifiedPenalty
			}
			out = append(out, c)
		}
	}

	zap.L().Debug("enhance: answered",
		zap.String("url", pageURL),
		zap.Int("requested", len(fields)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

const systemPrompt = `You extract facts about addiction and mental health treatment programs from website text.
Answer only with a JSON object keyed by field id. Each value is {"value": ..., "confidence": 0-1}.
Use a string for single fields and an array of strings for list fields. Omit fields the text does not state.
Do not report services the text says are not offered, only planned, or provided by a partner.`

func buildPrompt(fields []*model.Field, text string) string {
	var b strings.Builder
	b.WriteString("Fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s (%s)", f.ID, f.Cardinality)
		if len(f.Vocabulary) > 0 {
			names := make([]string, len(f.Vocabulary))
			for i, t := range f.Vocabulary {
				names[i] = t.Canonical
			}
			fmt.Fprintf(&b, " one or more of: %s", strings.Join(names, ", "))
		}
		b.WriteByte('\n')
	}
	b.WriteString("\nPage text:\n")
	b.WriteString(text)
	return b.String()
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// values flattens a string or list answer into non-empty strings.
func values(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, it := range t {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}

// surrounding returns the text around the first case-insensitive
// occurrence of value.
func surrounding(text, value string) (string, bool) {
	i := strings.Index(strings.ToLower(text), strings.ToLower(value))
	if i < 0 {
		return "", false
	}
	start := max(0, i-snippetRadius)
	end := min(len(text), i+len(value)+snippetRadius)
	if start >= end {
		return "", false
	}
	return text[start:end], true
}

// cleanJSON strips code fences and anything outside the outermost braces.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(strings.TrimPrefix(text, "```json"), "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
