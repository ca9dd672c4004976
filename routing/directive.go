package routing

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/agentrelay/core"
)

// Directive routes by a JSON object the model embeds in its reply:
//
//	{"route": {"to": ["billing@x", "audit@x"], "metadata": {"priority": "high"}}}
//
// "to" may be a string or an array. The directive block is removed from the
// delivered text. Replies without a directive go to the fallback.
type Directive struct {
	Fallback Resolver
}

// Resolve implements Resolver.
func (d Directive) Resolve(ctx context.Context, original core.Message, text string, tc TurnContext) (Route, error) {
	raw, start, end, ok := findDirective(text)
	if !ok {
		fb := d.Fallback
		if fb == nil {
			fb = Default{}
		}
		return fb.Resolve(ctx, original, text, tc)
	}

	route := Route{}
	to := gjson.Get(raw, "route.to")
	if to.IsArray() {
		for _, r := range to.Array() {
			route.Recipients = append(route.Recipients, r.String())
		}
	} else if to.Exists() {
		route.Recipients = []string{to.String()}
	}
	if md := gjson.Get(raw, "route.metadata"); md.IsObject() {
		route.Metadata = map[string]string{}
		md.ForEach(func(k, v gjson.Result) bool {
			route.Metadata[k.String()] = v.String()
			return true
		})
	}
	route.Transform = func(string) string {
		return strings.TrimSpace(text[:start] + text[end:])
	}
	return route, nil
}

// findDirective locates the first valid JSON object carrying route.to.
func findDirective(text string) (raw string, start, end int, ok bool) {
	closing := matchBraces(text)
	for i := 0; i < len(text); i++ {
		j, found := closing[i]
		if !found || !startsObject(text[i+1:]) {
			continue
		}
		candidate := text[i : j+1]
		if gjson.Valid(candidate) && gjson.Get(candidate, "route.to").Exists() {
			return candidate, i, j + 1, true
		}
	}
	return "", 0, 0, false
}

// matchBraces pairs every '{' with its closing '}' in one pass. Braces inside
// JSON strings are skipped once an object is open.
func matchBraces(text string) map[int]int {
	pairs := map[int]int{}
	var open []int
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = len(open) > 0
		case '{':
			open = append(open, i)
		case '}':
			if n := len(open); n > 0 {
				pairs[open[n-1]] = i
				open = open[:n-1]
			}
		}
	}
	return pairs
}

// startsObject reports whether s, the text after '{', opens a JSON object
// with at least one key.
func startsObject(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, `"`)
}
