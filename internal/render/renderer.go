package render

import (
	"bytes"
	_ "embed"
	stdhtml "html"
	"net/url"
	"path"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/alecthomas/chroma/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
)

const (
	mdLineAttribute = "data-md-line"

	// DocumentRoute serves linked markdown documents.
	DocumentRoute = "/md/"
	// FileRoute serves other files next to the watched document.
	FileRoute = "/files/"
)

// Renderer is a wrapper around the Goldmark markdown parser with pre-configured extensions
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithSanitize runs every rendered fragment through a UGC policy that keeps
// highlighting classes, heading ids, task-list checkboxes and line metadata.
func WithSanitize(enabled bool) Option {
	return func(r *Renderer) {
		if !enabled {
			r.policy = nil
			return
		}
		p := bluemonday.UGCPolicy()
		p.AllowAttrs("class").Globally()
		p.AllowDataAttributes()
		p.AllowElements("input")
		p.AllowAttrs("type", "checked", "disabled").OnElements("input")
		r.policy = p
	}
}

//go:embed page.html
var pageTemplate string

func NewRenderer(opts ...Option) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithWrapperRenderer(renderHighlightedCodeWrapper),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	r := &Renderer{md: md}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render converts the watched document to an HTML fragment.
func (r *Renderer) Render(source []byte) (string, error) {
	return r.RenderAt(source, "")
}

// RenderAt converts a document located at base, a slash-separated directory
// relative to the watched document's directory. Relative links and images are
// rewritten against base onto the document and file routes.
func (r *Renderer) RenderAt(source []byte, base string) (string, error) {
	doc := r.md.Parser().Parse(text.NewReader(source))
	decorateAST(doc, source, base)

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return "", err
	}

	if r.policy != nil {
		return r.policy.Sanitize(buf.String()), nil
	}
	return buf.String(), nil
}

// Page describes the shell a fragment is served in.
type Page struct {
	Title        string
	Instance     string // server process id, see contracts.UpdateMessage
	Content      string
	Version      uint64
	Mode         string // push, poll or static
	PollInterval int    // milliseconds
	PongTimeout  int    // milliseconds
}

// RenderPage returns a complete HTML page with the fragment inlined, so the
// first paint never waits for the update channel.
func (r *Renderer) RenderPage(p Page) string {
	return strings.NewReplacer(
		"{{TITLE}}", stdhtml.EscapeString(p.Title),
		"{{MODE}}", p.Mode,
		"{{INSTANCE}}", stdhtml.EscapeString(p.Instance),
		"{{VERSION}}", strconv.FormatUint(p.Version, 10),
		"{{POLL_MS}}", strconv.Itoa(p.PollInterval),
		"{{PONG_MS}}", strconv.Itoa(p.PongTimeout),
		"{{CHROMA_CSS}}", chromaCSS,
		"{{CONTENT}}", p.Content,
	).Replace(pageTemplate)
}

var chromaCSS = func() string {
	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(true))
	if err := formatter.WriteCSS(&buf, styles.Get("github")); err != nil {
		return ""
	}
	return buf.String()
}()

// decorateAST walks the AST once and applies render metadata.
// It attaches data-md-line to block-level elements so the page can keep its
// scroll position across updates, and rewrites relative link and image
// destinations onto the server routes.
func decorateAST(doc ast.Node, source []byte, base string) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if shouldAnnotateNode(n) {
			if offset, ok := firstNodeOffset(n); ok {
				n.SetAttributeString(mdLineAttribute, strconv.Itoa(offsetToLine(source, offset)))
			}
		}

		switch node := n.(type) {
		case *ast.Image:
			if dest, ok := rewriteDestination(string(node.Destination), base); ok {
				node.Destination = []byte(dest)
				node.SetAttributeString("loading", "lazy")
			}
		case *ast.Link:
			if dest, ok := rewriteDestination(string(node.Destination), base); ok {
				node.Destination = []byte(dest)
			}
		}
		return ast.WalkContinue, nil
	})
}

// rewriteDestination maps a relative destination onto /md/ for markdown
// documents and /files/ for everything else. Absolute URLs, server paths,
// fragments and scheme URLs are left alone.
func rewriteDestination(raw, base string) (string, bool) {
	dest := strings.TrimSpace(raw)
	if dest == "" || strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "#") {
		return "", false
	}

	u, err := url.Parse(dest)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}

	rel := u.Path
	if base != "" {
		rel = path.Join(base, rel)
	}

	suffix := ""
	if u.RawQuery != "" {
		suffix += "?" + u.RawQuery
	}
	if u.Fragment != "" {
		suffix += "#" + u.Fragment
	}

	if IsMarkdown(rel) {
		return DocumentRoute + rel + suffix, true
	}
	return FileRoute + rel + suffix, true
}

// IsMarkdown reports whether name has a markdown extension.
func IsMarkdown(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// shouldAnnotateNode returns true for block-level element types that should
// receive line metadata.
func shouldAnnotateNode(n ast.Node) bool {
	switch n.Kind() {
	case ast.KindHeading,
		ast.KindParagraph,
		ast.KindBlockquote,
		ast.KindFencedCodeBlock,
		ast.KindList,
		ast.KindListItem,
		ast.KindThematicBreak,
		extensionast.KindTable:
		return true
	default:
		return false
	}
}

// firstNodeOffset returns the byte offset of the first line in a node,
// searching children for container nodes such as lists.
func firstNodeOffset(n ast.Node) (int, bool) {
	if n == nil {
		return 0, false
	}

	if lines := n.Lines(); lines != nil && lines.Len() > 0 {
		return lines.At(0).Start, true
	}

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if offset, ok := firstNodeOffset(child); ok {
			return offset, true
		}
	}

	return 0, false
}

// offsetToLine converts a byte offset to a 1-based line number.
func offsetToLine(source []byte, offset int) int {
	offset = min(max(offset, 0), len(source))
	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}

// renderHighlightedCodeWrapper carries the line attribute of a fenced code
// block onto a wrapper div, since the highlighter renders its own <pre>.
func renderHighlightedCodeWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	line, ok := highlightedCodeLine(context)
	if !ok {
		return
	}

	if entering {
		_, _ = w.WriteString(`<div ` + mdLineAttribute + `="` + line + `">`)
		return
	}
	_, _ = w.WriteString("</div>")
}

func highlightedCodeLine(context highlighting.CodeBlockContext) (string, bool) {
	if context == nil {
		return "", false
	}

	attrs := context.Attributes()
	if attrs == nil {
		return "", false
	}

	v, ok := attrs.GetString(mdLineAttribute)
	if !ok {
		return "", false
	}

	switch typed := v.(type) {
	case string:
		return typed, typed != ""
	case []byte:
		return string(typed), len(typed) > 0
	default:
		return "", false
	}
}
