// Package search finds and navigates occurrences of a query in rendered
// document text.
//
// Offsets are rune indexes into the text. Matching is case-insensitive and
// folds one rune at a time, so folded text has the same length as the
// original and offsets stay valid in both. Every rune folds to the smallest
// member of its Unicode simple case-folding orbit, which puts ς, σ and Σ (or
// the Kelvin sign, K and k) on the same rune.
package search

import "unicode"

// Match is a half-open rune range [Start, End) of the text.
type Match struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Engine holds a query, its matches in document order, and a cursor.
// The cursor is -1 whenever there are no matches. Not safe for concurrent use.
type Engine struct {
	text    []rune
	folded  []rune
	query   string
	matches []Match
	cursor  int
}

// New indexes text with no active query.
func New(text string) *Engine {
	e := &Engine{cursor: -1}
	e.setText(text)
	return e
}

func (e *Engine) setText(text string) {
	e.text = []rune(text)
	e.folded = foldRunes(e.text)
}

// SetQuery replaces the query and rescans. An empty query clears everything.
func (e *Engine) SetQuery(q string) {
	e.query = q
	e.matches = nil
	e.cursor = -1
	if q == "" {
		return
	}

	e.matches = scan(e.folded, foldRunes([]rune(q)))
	if len(e.matches) > 0 {
		e.cursor = 0
	}
}

// Next moves the cursor to the following match, wrapping to the first.
func (e *Engine) Next() {
	if len(e.matches) == 0 {
		return
	}
	e.cursor = (e.cursor + 1) % len(e.matches)
}

// Previous moves the cursor to the preceding match, wrapping to the last.
func (e *Engine) Previous() {
	if len(e.matches) == 0 {
		return
	}
	e.cursor = (e.cursor - 1 + len(e.matches)) % len(e.matches)
}

// Reindex swaps in new text. An active query is rerun; the cursor stays on a
// match starting at the same offset if there is one, otherwise it goes back
// to the first match.
func (e *Engine) Reindex(text string) {
	prev, hadCurrent := e.Current()
	e.setText(text)
	if e.query == "" {
		return
	}

	e.SetQuery(e.query)
	if !hadCurrent {
		return
	}
	for i, m := range e.matches {
		if m.Start == prev.Start {
			e.cursor = i
			return
		}
	}
}

// Select moves the cursor to match i. Out-of-range values are ignored.
func (e *Engine) Select(i int) {
	if i >= 0 && i < len(e.matches) {
		e.cursor = i
	}
}

// Current returns the match under the cursor.
func (e *Engine) Current() (Match, bool) {
	if e.cursor < 0 || e.cursor >= len(e.matches) {
		return Match{}, false
	}
	return e.matches[e.cursor], true
}

func (e *Engine) Cursor() int   { return e.cursor }
func (e *Engine) Query() string { return e.query }
func (e *Engine) Len() int      { return len(e.matches) }

// Active reports whether a non-empty query is set.
func (e *Engine) Active() bool { return e.query != "" }

// Matches returns a copy of the matches in document order.
func (e *Engine) Matches() []Match {
	return append([]Match(nil), e.matches...)
}

// Slice returns the text covered by m, in its original case.
func (e *Engine) Slice(m Match) string {
	if m.Start < 0 || m.End > len(e.text) || m.Start > m.End {
		return ""
	}
	return string(e.text[m.Start:m.End])
}

// Context returns up to width runes on each side of m.
func (e *Engine) Context(m Match, width int) (before, after string) {
	start := max(m.Start-width, 0)
	end := min(m.End+width, len(e.text))
	return string(e.text[start:m.Start]), string(e.text[m.End:end])
}

// Find returns the non-overlapping, case-insensitive matches of query in text.
func Find(text, query string) []Match {
	if query == "" {
		return nil
	}
	return scan(foldRunes([]rune(text)), foldRunes([]rune(query)))
}

// scan is a greedy left-to-right search: after a hit, scanning resumes past
// its end, so no rune belongs to two matches.
func scan(text, q []rune) []Match {
	var out []Match
	n, m := len(text), len(q)
	for i := 0; i+m <= n; {
		if equalAt(text, q, i) {
			out = append(out, Match{Start: i, End: i + m})
			i += m
			continue
		}
		i++
	}
	return out
}

func equalAt(text, q []rune, i int) bool {
	for j, r := range q {
		if text[i+j] != r {
			return false
		}
	}
	return true
}

func foldRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = foldRune(r)
	}
	return out
}

func foldRune(r rune) rune {
	m := r
	for f := unicode.SimpleFold(r); f != r; f = unicode.SimpleFold(f) {
		if f < m {
			m = f
		}
	}
	return m
}
