package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func starts(ms []Match) []int {
	out := make([]int, len(ms))
	for i, m := range ms {
		out[i] = m.Start
	}
	return out
}

func TestSetQueryFindsNonOverlappingMatches(t *testing.T) {
	e := New("ababab")
	e.SetQuery("ab")

	assert.Equal(t, []int{0, 2, 4}, starts(e.Matches()))
	assert.Equal(t, 0, e.Cursor())
	assert.True(t, e.Active())
}

func TestNextWrapsAround(t *testing.T) {
	e := New("ababab")
	e.SetQuery("ab")

	var seen []int
	for i := 0; i < 4; i++ {
		e.Next()
		seen = append(seen, e.Cursor())
	}
	assert.Equal(t, []int{1, 2, 0, 1}, seen)
}

func TestPreviousWrapsAround(t *testing.T) {
	e := New("ababab")
	e.SetQuery("ab")

	e.Previous()
	assert.Equal(t, 2, e.Cursor())
	e.Previous()
	assert.Equal(t, 1, e.Cursor())
	e.Previous()
	e.Previous()
	assert.Equal(t, 2, e.Cursor())
}

func TestOverlappingCandidatesResolveGreedily(t *testing.T) {
	testCases := []struct {
		text     string
		query    string
		expected []int
	}{
		{"aaa", "aa", []int{0}},
		{"aaaa", "aa", []int{0, 2}},
		{"abababa", "aba", []int{0, 4}},
	}

	for _, tc := range testCases {
		t.Run(tc.text+"/"+tc.query, func(t *testing.T) {
			assert.Equal(t, tc.expected, starts(Find(tc.text, tc.query)))
		})
	}
}

func TestCaseInsensitive(t *testing.T) {
	e := New("Hello HELLO hello hElLo")
	e.SetQuery("HeLLo")

	require.Equal(t, 4, e.Len())
	assert.Equal(t, "HELLO", e.Slice(e.Matches()[1]))

	e = New("Ünïcode ÜNÏCODE")
	e.SetQuery("ünïcode")
	assert.Equal(t, []int{0, 8}, starts(e.Matches()))
}

func TestCaseFoldingOrbits(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		query  string
		starts []int
	}{
		{"final sigma", "ς Σ σ", "σ", []int{0, 2, 4}},
		{"capital sigma query", "ς Σ σ", "Σ", []int{0, 2, 4}},
		{"long s", "ſtop STOP", "stop", []int{0, 5}},
		{"kelvin sign", "\u212Aelvin kelvin", "KELVIN", []int{0, 7}},
		{"kelvin sign in query", "Kelvin", "\u212Aelvin", []int{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.text)
			e.SetQuery(tt.query)
			assert.Equal(t, tt.starts, starts(e.Matches()))
			for _, m := range e.Matches() {
				assert.Equal(t, len([]rune(tt.query)), m.End-m.Start, "folding keeps rune offsets")
			}
		})
	}
}

func TestEmptyQueryClears(t *testing.T) {
	e := New("some text with text")
	e.SetQuery("text")
	require.Equal(t, 2, e.Len())

	e.SetQuery("")
	assert.Equal(t, 0, e.Len())
	assert.Equal(t, -1, e.Cursor())
	assert.False(t, e.Active())
	_, ok := e.Current()
	assert.False(t, ok)
	assert.Equal(t, "<p>some text</p>", e.Highlight("<p>some text</p>"))
}

func TestNoMatchesNavigationIsNoop(t *testing.T) {
	e := New("abc")
	e.SetQuery("zzz")

	e.Next()
	e.Previous()
	assert.Equal(t, -1, e.Cursor())
	assert.True(t, e.Active(), "query is kept even without matches")
}

func TestReindexKeepsCursorOnSameOffset(t *testing.T) {
	e := New("foo bar foo bar foo")
	e.SetQuery("foo")
	e.Next()
	cur, _ := e.Current()
	require.Equal(t, 8, cur.Start)

	e.Reindex("foo baz foo baz foo foo")
	assert.Equal(t, "foo", e.Query())
	assert.Equal(t, 4, e.Len())
	cur, ok := e.Current()
	require.True(t, ok)
	assert.Equal(t, 8, cur.Start)
}

func TestReindexResetsStaleCursor(t *testing.T) {
	e := New("foo bar foo bar foo")
	e.SetQuery("foo")
	e.Next()
	e.Next()

	e.Reindex("foo")
	assert.Equal(t, 0, e.Cursor())

	e.Reindex("nothing here")
	assert.Equal(t, -1, e.Cursor())
	assert.Equal(t, "foo", e.Query())

	e.Reindex("foo again")
	assert.Equal(t, 0, e.Cursor())
}

func TestReindexWithoutQuery(t *testing.T) {
	e := New("one")
	e.Reindex("two two")
	assert.Equal(t, 0, e.Len())

	e.SetQuery("two")
	assert.Equal(t, 2, e.Len())
}

func TestSelect(t *testing.T) {
	e := New("x x x")
	e.SetQuery("x")
	e.Select(2)
	assert.Equal(t, 2, e.Cursor())
	e.Select(7)
	assert.Equal(t, 2, e.Cursor())
}

func TestContext(t *testing.T) {
	e := New("the quick brown fox")
	e.SetQuery("brown")
	before, after := e.Context(e.Matches()[0], 6)
	assert.Equal(t, "quick ", before)
	assert.Equal(t, " fox", after)
}

func TestTextContent(t *testing.T) {
	fragment := `<h1 id="t">Title &amp; more</h1><p>Some <em>emph</em> text</p><script>var x = "Title";</script><style>p{}</style>`
	assert.Equal(t, "Title & moreSome emph text", TextContent(fragment))
}

func TestHighlightMarksCurrentDistinctly(t *testing.T) {
	fragment := `<p>ab <b>ab</b> ab</p>`
	e := New(TextContent(fragment))
	e.SetQuery("ab")
	e.Next()

	got := e.Highlight(fragment)
	assert.Equal(t,
		`<p><mark class="mdview-match" data-match="0">ab</mark> `+
			`<b><mark class="mdview-match mdview-current" data-match="1">ab</mark></b> `+
			`<mark class="mdview-match" data-match="2">ab</mark></p>`,
		got)
	assert.Equal(t, 1, strings.Count(got, CurrentClass))
}

func TestHighlightSpansElements(t *testing.T) {
	fragment := `<p>hel<em>lo</em> world</p>`
	e := New(TextContent(fragment))
	e.SetQuery("hello")
	require.Equal(t, 1, e.Len())

	got := e.Highlight(fragment)
	assert.Equal(t,
		`<p><mark class="mdview-match mdview-current" data-match="0">hel</mark>`+
			`<em><mark class="mdview-match mdview-current" data-match="0">lo</mark></em> world</p>`,
		got)
}

func TestHighlightIgnoresScriptAndEscapes(t *testing.T) {
	fragment := `<p>x &lt;tag&gt; x</p><script>x</script>`
	e := New(TextContent(fragment))
	e.SetQuery("x")

	got := e.Highlight(fragment)
	assert.Equal(t, 2, e.Len())
	assert.Contains(t, got, "&lt;tag&gt;")
	assert.Contains(t, got, "<script>x</script>")
	assert.Equal(t, TextContent(fragment), TextContent(got))
}
