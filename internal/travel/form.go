// Package travel implements the trip-planner variant: a structured request
// form, the planner call and the rendering of its result.
package travel

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Currencies accepted by the planner.
var Currencies = []string{"INR", "USD", "EUR"}

// Form is the planner request, sent as {"query": form}.
type Form struct {
	Destination string `json:"destination"`
	Currency    string `json:"currency"`
	Adults      int    `json:"adults"`
	From        string `json:"from"`
	To          string `json:"to"`
	Nights      int    `json:"nights"`
	StartDate   string `json:"start_date"`
	ReturnDate  string `json:"return_date"`
}

// NewForm returns a form with the planner defaults.
func NewForm() Form {
	return Form{Currency: "INR", Adults: 1, Nights: 3}
}

// SetDestination selects a destination; a city from the airport table also
// fills both IATA codes.
func (f *Form) SetDestination(city string) {
	f.Destination = strings.TrimSpace(city)
	if a, ok := LookupCity(f.Destination); ok {
		f.Destination = a.City
		f.From = a.Code
		f.To = a.Code
	}
}

// Validate checks the form before it is sent.
func (f Form) Validate() error {
	var errs []string
	if strings.TrimSpace(f.Destination) == "" {
		errs = append(errs, "destination is required")
	}
	if !validCurrency(f.Currency) {
		errs = append(errs, fmt.Sprintf("currency must be one of: %s (got %q)", strings.Join(Currencies, ", "), f.Currency))
	}
	if f.Adults < 1 {
		errs = append(errs, "adults must be at least 1")
	}
	if f.Nights < 1 {
		errs = append(errs, "nights must be at least 1")
	}
	for _, code := range []struct{ name, v string }{{"from", f.From}, {"to", f.To}} {
		if code.v != "" && len(code.v) != 3 {
			errs = append(errs, fmt.Sprintf("%s must be a 3-letter IATA code (got %q)", code.name, code.v))
		}
	}

	var start, ret time.Time
	var err error
	if f.StartDate != "" {
		if start, err = time.Parse(dateLayout, f.StartDate); err != nil {
			errs = append(errs, fmt.Sprintf("start_date must be YYYY-MM-DD (got %q)", f.StartDate))
		}
	}
	if f.ReturnDate != "" {
		if ret, err = time.Parse(dateLayout, f.ReturnDate); err != nil {
			errs = append(errs, fmt.Sprintf("return_date must be YYYY-MM-DD (got %q)", f.ReturnDate))
		}
	}
	if !start.IsZero() && !ret.IsZero() && ret.Before(start) {
		errs = append(errs, "return_date is before start_date")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid trip form: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validCurrency(c string) bool {
	for _, v := range Currencies {
		if c == v {
			return true
		}
	}
	return false
}
