// Package segment turns a free-form markdown-like answer into titled,
// categorized sections.
//
// A heading is a line of the form **Title** followed by a line break. Its body
// runs until the next heading or the end of the text. "Day N" headings are
// folded into the section produced before them, which is how multi-day
// itineraries stay together.
package segment

import (
	"regexp"
	"strings"
)

// Section is one titled block of an answer.
type Section struct {
	Title    string
	Body     string
	Category Category
}

// Emoji returns the display tag for the section.
func (s Section) Emoji() string { return s.Category.Emoji() }

// DisplayBody returns the body with bold markers removed.
func (s Section) DisplayBody() string { return StripMarkers(s.Body) }

var (
	headingPattern = regexp.MustCompile(`\*\*(.+?)\*\*\s*\n`)
	dayPattern     = regexp.MustCompile(`(?i)^Day \d+`)
	secondPage     = regexp.MustCompile(`(?i)itinerary|attractions`)
)

// Segment splits raw into sections in order of first appearance. It returns
// nil when raw contains no heading; callers then show the raw text as one block.
func Segment(raw string) []Section {
	matches := headingPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	sections := make([]Section, 0, len(matches))
	for i, m := range matches {
		title := raw[m[2]:m[3]]
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		body := raw[m[1]:bodyEnd]

		if dayPattern.MatchString(title) && len(sections) > 0 {
			last := &sections[len(sections)-1]
			last.Body += "\n\n" + "**" + title + "**\n" + body
			continue
		}

		title = strings.TrimSpace(title)
		sections = append(sections, Section{
			Title:    title,
			Body:     strings.TrimSpace(body),
			Category: Categorize(title),
		})
	}
	return sections
}

// IsSecondPage reports whether a section title belongs on the itinerary page.
func IsSecondPage(title string) bool {
	return secondPage.MatchString(title)
}

// Paginate partitions sections into the overview page and the itinerary page,
// keeping relative order within each page.
func Paginate(sections []Section) (first, second []Section) {
	for _, s := range sections {
		if IsSecondPage(s.Title) {
			second = append(second, s)
		} else {
			first = append(first, s)
		}
	}
	return first, second
}

// StripMarkers removes ** bold markers and surrounding whitespace.
func StripMarkers(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "**", ""))
}
