package guardrail

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hupe1980/agentrelay/core"
)

// Keyword blocks content containing any listed term (case-insensitive).
type Keyword struct {
	terms []string
	reply string
}

// NewKeyword creates a keyword blocklist. reply may be empty.
func NewKeyword(terms []string, reply string) *Keyword {
	lower := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			lower = append(lower, strings.ToLower(t))
		}
	}
	return &Keyword{terms: lower, reply: reply}
}

// Name implements Guardrail.
func (k *Keyword) Name() string { return "keyword" }

// Apply implements Guardrail.
func (k *Keyword) Apply(_ context.Context, content string, _ core.Message) (Decision, error) {
	lc := strings.ToLower(content)
	for _, t := range k.terms {
		if strings.Contains(lc, t) {
			return Decision{Action: ActionBlock, Reason: fmt.Sprintf("blocked term %q", t), Reply: k.reply}, nil
		}
	}
	return Allow(), nil
}

// Redact rewrites every match of its patterns with a replacement.
type Redact struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedact compiles patterns. An empty replacement becomes "[REDACTED]".
func NewRedact(patterns []string, replacement string) (*Redact, error) {
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	r := &Redact{replacement: replacement}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Name implements Guardrail.
func (r *Redact) Name() string { return "redact" }

// Apply implements Guardrail.
func (r *Redact) Apply(_ context.Context, content string, _ core.Message) (Decision, error) {
	out := content
	hits := 0
	for _, re := range r.patterns {
		out = re.ReplaceAllStringFunc(out, func(string) string {
			hits++
			return r.replacement
		})
	}
	if hits == 0 {
		return Allow(), nil
	}
	return Decision{Action: ActionModify, Content: out, Reason: fmt.Sprintf("redacted %d match(es)", hits)}, nil
}

// MaxLength blocks content longer than a rune limit.
type MaxLength struct {
	limit int
}

// NewMaxLength creates a length guardrail.
func NewMaxLength(limit int) *MaxLength { return &MaxLength{limit: limit} }

// Name implements Guardrail.
func (m *MaxLength) Name() string { return "max_length" }

// Apply implements Guardrail.
func (m *MaxLength) Apply(_ context.Context, content string, _ core.Message) (Decision, error) {
	if n := utf8.RuneCountInString(content); m.limit > 0 && n > m.limit {
		return Decision{Action: ActionBlock, Reason: fmt.Sprintf("content length %d exceeds %d", n, m.limit)}, nil
	}
	return Allow(), nil
}
