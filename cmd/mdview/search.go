package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go-mdview/internal/render"
	"go-mdview/internal/search"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	styleMatch   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Underline(true)
	styleCurrent = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11")).Bold(true)
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func searchCmd() *cobra.Command {
	var index, width int
	var asHTML, sanitize bool

	cmd := &cobra.Command{
		Use:   "search <file> <query>",
		Short: "Find occurrences of a query in the rendered document",
		Long: `Render <file> once and search its visible text case-insensitively.
Matches never overlap. --index moves the cursor, counting from 0 and wrapping
in both directions, and the match under it is shown distinctly.

With --html the rendered HTML is printed with every match wrapped in
<mark class="mdview-match">; the current one also carries mdview-current.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			fragment, err := render.NewRenderer(render.WithSanitize(sanitize)).Render(source)
			if err != nil {
				return err
			}

			e := search.New(search.TextContent(fragment))
			e.SetQuery(args[1])
			moveCursor(e, index)

			out := cmd.OutOrStdout()
			if asHTML {
				_, err := io.WriteString(out, e.Highlight(fragment)+"\n")
				return err
			}

			if e.Len() == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "No matches found.")
				return nil
			}
			printMatches(out, e, width, isTerminal(out))
			return nil
		},
	}

	cmd.Flags().IntVarP(&index, "index", "i", 0, "Match to put the cursor on; negative counts from the end")
	cmd.Flags().IntVarP(&width, "context", "C", 30, "Characters of context on each side of a match")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the highlighted HTML instead of a match list")
	cmd.Flags().BoolVar(&sanitize, "sanitize", false, "Sanitize rendered HTML")
	return cmd
}

// moveCursor steps the cursor from the first match, so any index wraps the
// same way repeated next and previous presses would.
func moveCursor(e *search.Engine, index int) {
	if e.Len() == 0 {
		return
	}
	for ; index > 0; index-- {
		e.Next()
	}
	for ; index < 0; index++ {
		e.Previous()
	}
}

func printMatches(w io.Writer, e *search.Engine, width int, color bool) {
	flatten := strings.NewReplacer("\n", " ", "\t", " ")

	for i, m := range e.Matches() {
		before, after := e.Context(m, width)
		before, after = flatten.Replace(before), flatten.Replace(after)
		hit := e.Slice(m)
		marker := " "
		if i == e.Cursor() {
			marker = ">"
		}

		if !color {
			fmt.Fprintf(w, "%s%d\t%d\t%s>>>%s<<<%s\n", marker, i, m.Start, before, hit, after)
			continue
		}

		style := styleMatch
		if i == e.Cursor() {
			style = styleCurrent
		}
		fmt.Fprintf(w, "%s%s %s%s%s\n",
			marker,
			styleDim.Render(fmt.Sprintf("%3d", i)),
			before, style.Render(hit), after,
		)
	}
	fmt.Fprintf(w, "%d/%d\n", e.Cursor()+1, e.Len())
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
