package search

import (
	"html"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSearchProperties validates the matching and navigation invariants
func TestSearchProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	// Small alphabets make overlapping candidates common.
	text := gen.RegexMatch(`[abAB ]{0,40}`)
	query := gen.RegexMatch(`[abA]{1,3}`)

	properties.Property("matches are ordered, disjoint and equal the query ignoring case", prop.ForAll(
		func(text, q string) bool {
			e := New(text)
			e.SetQuery(q)
			prevEnd := 0
			for _, m := range e.Matches() {
				if m.Start < prevEnd || m.End-m.Start != len([]rune(q)) {
					return false
				}
				if !strings.EqualFold(e.Slice(m), q) {
					return false
				}
				prevEnd = m.End
			}
			return true
		},
		text, query,
	))

	properties.Property("cursor stays in range and cycles back after len steps", prop.ForAll(
		func(text, q string, steps int) bool {
			e := New(text)
			e.SetQuery(q)
			if e.Len() == 0 {
				return e.Cursor() == -1
			}
			for i := 0; i < steps; i++ {
				e.Next()
				if e.Cursor() < 0 || e.Cursor() >= e.Len() {
					return false
				}
			}
			start := e.Cursor()
			for i := 0; i < e.Len(); i++ {
				e.Previous()
			}
			return e.Cursor() == start
		},
		text, query, gen.IntRange(0, 20),
	))

	properties.Property("empty query always clears", prop.ForAll(
		func(text, q string) bool {
			e := New(text)
			e.SetQuery(q)
			e.SetQuery("")
			_, ok := e.Current()
			return e.Len() == 0 && !ok && !e.Active()
		},
		text, query,
	))

	properties.Property("reindex never leaves a stale cursor", prop.ForAll(
		func(before, after, q string, steps int) bool {
			e := New(before)
			e.SetQuery(q)
			for i := 0; i < steps; i++ {
				e.Next()
			}
			e.Reindex(after)
			if e.Len() == 0 {
				return e.Cursor() == -1
			}
			return e.Cursor() >= 0 && e.Cursor() < e.Len()
		},
		text, text, query, gen.IntRange(0, 5),
	))

	properties.Property("highlighting never changes the visible text", prop.ForAll(
		func(text, q string) bool {
			fragment := "<p>" + html.EscapeString(text) + "</p><p><em>" + html.EscapeString(text) + "</em></p>"
			e := New(TextContent(fragment))
			e.SetQuery(q)
			return TextContent(e.Highlight(fragment)) == TextContent(fragment)
		},
		text, query,
	))

	properties.TestingRun(t)
}
