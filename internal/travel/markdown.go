package travel

import (
	"regexp"
	"strings"

	"github.com/fatih/color"
)

var (
	boldSpan   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	italicSpan = regexp.MustCompile(`\*(.*?)\*`)

	h1 = color.New(color.Bold, color.Underline)
	h2 = color.New(color.Bold, color.FgHiWhite)
	h3 = color.New(color.Bold)
	em = color.New(color.Italic)
)

// RenderToolMarkdown renders the small markdown subset used in tool logs
// (#..#### headings, **bold**, *em*, "- " bullets) for a terminal.
func RenderToolMarkdown(text string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "#### "):
			lines[i] = h3.Sprint(inline(line[5:]))
		case strings.HasPrefix(line, "### "):
			lines[i] = h3.Sprint(inline(line[4:]))
		case strings.HasPrefix(line, "## "):
			lines[i] = h2.Sprint(inline(line[3:]))
		case strings.HasPrefix(line, "# "):
			lines[i] = h1.Sprint(inline(line[2:]))
		case strings.HasPrefix(strings.TrimLeft(line, " \t"), "- "):
			lines[i] = "  • " + inline(strings.TrimLeft(line, " \t")[2:])
		default:
			lines[i] = inline(line)
		}
	}
	return strings.Join(lines, "\n")
}

func inline(s string) string {
	s = boldSpan.ReplaceAllStringFunc(s, func(m string) string {
		return h3.Sprint(m[2 : len(m)-2])
	})
	return italicSpan.ReplaceAllStringFunc(s, func(m string) string {
		return em.Sprint(m[1 : len(m)-1])
	})
}
