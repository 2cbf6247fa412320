package segment

import "regexp"

// Category is the display tag inferred from a section title.
type Category string

const (
	CategoryDates      Category = "dates"
	CategoryFlights    Category = "flights"
	CategoryLodging    Category = "lodging"
	CategoryItinerary  Category = "itinerary"
	CategoryWeather    Category = "weather"
	CategoryBudget     Category = "budget"
	CategoryCurrency   Category = "currency"
	CategoryRestaurant Category = "restaurant"
	CategoryTransport  Category = "transport"
	CategoryCheckIn    Category = "check-in"
	CategoryCheckOut   Category = "check-out"
	CategoryDay        Category = "day"
	CategoryTrip       Category = "trip"
	CategoryGeneric    Category = "generic"
)

var emojis = map[Category]string{
	CategoryDates:      "📅",
	CategoryFlights:    "✈️",
	CategoryLodging:    "🏨",
	CategoryItinerary:  "🗺️",
	CategoryWeather:    "🌤️",
	CategoryBudget:     "💰",
	CategoryCurrency:   "💱",
	CategoryRestaurant: "🍽️",
	CategoryTransport:  "🚗",
	CategoryCheckIn:    "🛎️",
	CategoryCheckOut:   "🏁",
	CategoryDay:        "🗓️",
	CategoryTrip:       "🧳",
	CategoryGeneric:    "📄",
}

// Emoji returns the icon shown next to a section title.
func (c Category) Emoji() string {
	if e, ok := emojis[c]; ok {
		return e
	}
	return emojis[CategoryGeneric]
}

// knownTitles maps the titles the planner emits verbatim.
var knownTitles = map[string]Category{
	"Dates":                     CategoryDates,
	"Travel Dates":              CategoryDates,
	"Onward Flight":             CategoryFlights,
	"Return Flight":             CategoryFlights,
	"Hotel":                     CategoryLodging,
	"Stay Location":             CategoryLodging,
	"Itinerary":                 CategoryItinerary,
	"Attractions and Itinerary": CategoryItinerary,
	"Weather":                   CategoryWeather,
	"Budget":                    CategoryBudget,
	"Currency":                  CategoryCurrency,
	"Day 1":                     CategoryDay,
	"Day 2":                     CategoryDay,
	"Day 3":                     CategoryDay,
	"Day 4":                     CategoryDay,
	"Day 5":                     CategoryDay,
	"Restaurant":                CategoryRestaurant,
	"Transport":                 CategoryTransport,
	"Check-in":                  CategoryCheckIn,
	"Check-out":                 CategoryCheckOut,
}

type rule struct {
	pattern  *regexp.Regexp
	category Category
}

// rules are tried in order; the first match wins. A title mentioning both a
// flight and a budget is a flight section.
var rules = []rule{
	{regexp.MustCompile(`(?i)^Day \d+`), CategoryDay},
	{regexp.MustCompile(`(?i)plan|summary|vacation|trip`), CategoryTrip},
	{regexp.MustCompile(`(?i)weather`), CategoryWeather},
	{regexp.MustCompile(`(?i)flight`), CategoryFlights},
	{regexp.MustCompile(`(?i)hotel|stay`), CategoryLodging},
	{regexp.MustCompile(`(?i)date`), CategoryDates},
	{regexp.MustCompile(`(?i)budget|cost|price`), CategoryBudget},
	{regexp.MustCompile(`(?i)currency`), CategoryCurrency},
	{regexp.MustCompile(`(?i)itinerary|attraction`), CategoryItinerary},
	{regexp.MustCompile(`(?i)restaurant`), CategoryRestaurant},
	{regexp.MustCompile(`(?i)transport`), CategoryTransport},
	{regexp.MustCompile(`(?i)check-in`), CategoryCheckIn},
	{regexp.MustCompile(`(?i)check-out`), CategoryCheckOut},
}

// Categorize infers the display category of a title: exact known titles
// first, then the ordered keyword rules, then generic.
func Categorize(title string) Category {
	if c, ok := knownTitles[title]; ok {
		return c
	}
	for _, r := range rules {
		if r.pattern.MatchString(title) {
			return r.category
		}
	}
	return CategoryGeneric
}
