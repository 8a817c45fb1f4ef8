package search

import (
	"bytes"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// MatchClass marks every match.
	MatchClass = "mdview-match"
	// CurrentClass additionally marks the match under the cursor.
	CurrentClass = "mdview-current"
)

// walkText calls fn for every visible text run of fragment, in document
// order, and passes every other token through raw. Script and style bodies
// are not text.
func walkText(fragment string, fn func(text string), raw func(b []byte)) {
	z := html.NewTokenizer(strings.NewReader(fragment))
	skip := 0
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return
		case html.TextToken:
			if skip > 0 {
				raw(z.Raw())
				continue
			}
			fn(string(z.Text()))
			continue
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
		}
		raw(z.Raw())
	}
}

// TextContent returns the visible text of an HTML fragment with entities
// decoded. Match offsets refer to this text.
func TextContent(fragment string) string {
	var sb strings.Builder
	walkText(fragment, func(text string) { sb.WriteString(text) }, func([]byte) {})
	return sb.String()
}

// Highlight wraps every match of the engine in fragment with a <mark>
// element. The engine must have been indexed over TextContent(fragment).
// A match spanning several text runs is marked piecewise.
func (e *Engine) Highlight(fragment string) string {
	if len(e.matches) == 0 {
		return fragment
	}

	var out bytes.Buffer
	pos := 0 // rune offset of the current text run
	next := 0

	walkText(fragment, func(text string) {
		runes := []rune(text)
		if len(runes) == 0 {
			return
		}
		end := pos + len(runes)
		local := 0

		for next < len(e.matches) && e.matches[next].Start < end {
			m := e.matches[next]
			s := max(m.Start, pos) - pos
			t := min(m.End, end) - pos

			writeEscaped(&out, runes[local:s])
			openMark(&out, next, next == e.cursor)
			writeEscaped(&out, runes[s:t])
			out.WriteString("</mark>")
			local = t

			if m.End > end {
				break
			}
			next++
		}
		writeEscaped(&out, runes[local:])
		pos = end
	}, func(b []byte) { out.Write(b) })

	return out.String()
}

func openMark(w io.Writer, i int, current bool) {
	class := MatchClass
	if current {
		class += " " + CurrentClass
	}
	_, _ = io.WriteString(w, `<mark class="`+class+`" data-match="`+strconv.Itoa(i)+`">`)
}

func writeEscaped(w *bytes.Buffer, rs []rune) {
	if len(rs) == 0 {
		return
	}
	w.WriteString(html.EscapeString(string(rs)))
}
