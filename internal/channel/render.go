package channel

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"ragdesk/internal/domain"
	"ragdesk/internal/segment"
	"ragdesk/internal/travel"
)

const excerptLen = 160

// Renderer prints timeline entries, segmented answers and trip plans to a
// terminal. Writes are serialized.
type Renderer struct {
	mu  sync.Mutex
	out io.Writer

	user      *color.Color
	assistant *color.Color
	heading   *color.Color
	faint     *color.Color
	warn      *color.Color
}

func NewRenderer(out io.Writer, colorize bool) *Renderer {
	r := &Renderer{
		out:       out,
		user:      color.New(color.FgGreen),
		assistant: color.New(color.FgCyan),
		heading:   color.New(color.Bold),
		faint:     color.New(color.Faint, color.Italic),
		warn:      color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{r.user, r.assistant, r.heading, r.faint, r.warn} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// Message prints one timeline entry.
func (r *Renderer) Message(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m.IsUser() {
		fmt.Fprintln(r.out, r.user.Sprint("you> ")+userLine(m))
		return
	}

	fmt.Fprintln(r.out, r.assistant.Sprint("assistant>"))
	if sections := segment.Segment(m.Content); sections != nil {
		r.writeSections(sections)
	} else {
		fmt.Fprintln(r.out, m.Content)
	}
	for i, src := range m.Sources {
		fmt.Fprintln(r.out, r.faint.Sprintf("  [%d] %s", i+1, sourceLine(src)))
	}
	if m.AnswerSource != "" {
		fmt.Fprintln(r.out, r.faint.Sprintf("Answer source: %s", m.AnswerSource))
	}
}

// Sections prints segmented output.
func (r *Renderer) Sections(sections []segment.Section) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeSections(sections)
}

func (r *Renderer) writeSections(sections []segment.Section) {
	for _, s := range sections {
		fmt.Fprintln(r.out, r.heading.Sprintf("%s %s", s.Emoji(), s.Title))
		if body := s.DisplayBody(); body != "" {
			fmt.Fprintln(r.out, body)
		}
		fmt.Fprintln(r.out)
	}
}

// Plan prints a trip plan: tool log, flight details, then the two pages.
func (r *Renderer) Plan(p travel.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(p.Messages) > 0 {
		fmt.Fprintln(r.out, r.heading.Sprint("Tool Messages"))
		for _, m := range p.Messages {
			label := m.Role
			if m.ToolName != "" {
				label += " [" + m.ToolName + "]"
			}
			fmt.Fprintln(r.out, r.faint.Sprint(strings.TrimSpace(label)))
			if m.Content != "" {
				fmt.Fprintln(r.out, travel.RenderToolMarkdown(m.Content))
			}
		}
		fmt.Fprintln(r.out)
	}

	if p.FlightsOnward != "" {
		fmt.Fprintln(r.out, r.heading.Sprint("Flights Onward:"))
		fmt.Fprintln(r.out, p.FlightsOnward)
	}
	if p.FlightsReturn != "" {
		fmt.Fprintln(r.out, r.heading.Sprint("Flights Return:"))
		fmt.Fprintln(r.out, p.FlightsReturn)
	}

	if p.Failed {
		fmt.Fprintln(r.out, r.warn.Sprint(p.Summary))
		return
	}
	sections := segment.Segment(p.Summary)
	if sections == nil {
		fmt.Fprintln(r.out, segment.StripMarkers(p.Summary))
		return
	}
	first, second := segment.Paginate(sections)
	fmt.Fprintln(r.out, r.heading.Sprint("── Page 1 ──"))
	r.writeSections(first)
	if len(second) > 0 {
		fmt.Fprintln(r.out, r.heading.Sprint("── Page 2 ──"))
		r.writeSections(second)
	}
}

// Notice prints a status line.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.faint.Sprintf(format, args...))
}

// Warn prints a warning line.
func (r *Renderer) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.warn.Sprintf(format, args...))
}

func userLine(m domain.Message) string {
	switch m.Kind {
	case domain.KindFile:
		return "📎 " + m.FileName
	case domain.KindVideo:
		return "🎬 " + m.FileName
	default:
		return m.Content
	}
}

func sourceLine(src domain.Source) string {
	name := src.Name
	if name == "" {
		name = "source"
	}
	excerpt := strings.Join(strings.Fields(src.Excerpt), " ")
	if excerpt == "" {
		return name
	}
	if r := []rune(excerpt); len(r) > excerptLen {
		excerpt = string(r[:excerptLen]) + "..."
	}
	return name + ": " + excerpt
}

// FormatPlain renders an assistant entry as plain text for chat apps.
func FormatPlain(m domain.Message) string {
	var sb strings.Builder
	if sections := segment.Segment(m.Content); sections != nil {
		for i, s := range sections {
			if i > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(s.Emoji() + " " + s.Title)
			if body := s.DisplayBody(); body != "" {
				sb.WriteString("\n" + body)
			}
		}
	} else {
		sb.WriteString(m.Content)
	}
	if len(m.Sources) > 0 {
		sb.WriteString("\n\nSources:")
		for i, src := range m.Sources {
			fmt.Fprintf(&sb, "\n%d. %s", i+1, sourceLine(src))
		}
	}
	if m.AnswerSource != "" {
		sb.WriteString("\n\nAnswer source: " + m.AnswerSource)
	}
	return sb.String()
}
