package travel

import "strings"

// Airport maps a destination city to the IATA code used for both legs.
type Airport struct {
	City string
	Code string
}

var airports = []Airport{
	{"Delhi", "DEL"}, {"Mumbai", "BOM"}, {"Chennai", "MAA"}, {"Hyderabad", "HYD"},
	{"Bengaluru", "BLR"}, {"Kolkata", "CCU"}, {"Ahmedabad", "AMD"}, {"Pune", "PNQ"},
	{"Goa", "GOI"}, {"Kochi", "COK"}, {"Jaipur", "JAI"}, {"Lucknow", "LKO"},
	{"Guwahati", "GAU"}, {"Thiruvananthapuram", "TRV"}, {"Nagpur", "NAG"},
	{"New York", "JFK"}, {"London", "LHR"}, {"Dubai", "DXB"}, {"Singapore", "SIN"},
	{"Tokyo", "NRT"}, {"Paris", "CDG"}, {"Frankfurt", "FRA"}, {"Bangkok", "BKK"},
	{"Sydney", "SYD"}, {"Hong Kong", "HKG"}, {"Toronto", "YYZ"}, {"Los Angeles", "LAX"},
	{"Chicago", "ORD"}, {"Istanbul", "IST"}, {"Amsterdam", "AMS"}, {"Zurich", "ZRH"},
	{"Doha", "DOH"}, {"Seoul", "ICN"}, {"Madrid", "MAD"}, {"Rome", "FCO"},
	{"San Francisco", "SFO"}, {"Beijing", "PEK"}, {"Shanghai", "PVG"}, {"Cape Town", "CPT"},
	{"Johannesburg", "JNB"}, {"Mexico City", "MEX"}, {"Sao Paulo", "GRU"}, {"Moscow", "SVO"},
	{"Vienna", "VIE"}, {"Munich", "MUC"}, {"Brussels", "BRU"}, {"Copenhagen", "CPH"},
	{"Stockholm", "ARN"}, {"Oslo", "OSL"}, {"Helsinki", "HEL"}, {"Lisbon", "LIS"},
	{"Warsaw", "WAW"}, {"Budapest", "BUD"}, {"Prague", "PRG"}, {"Athens", "ATH"},
	{"Dublin", "DUB"}, {"Brisbane", "BNE"}, {"Auckland", "AKL"}, {"Kuala Lumpur", "KUL"},
	{"Jakarta", "CGK"}, {"Manila", "MNL"}, {"Abu Dhabi", "AUH"},
}

// Airports returns the destination table in display order.
func Airports() []Airport {
	out := make([]Airport, len(airports))
	copy(out, airports)
	return out
}

// LookupCity finds a destination by city name, case-insensitively.
func LookupCity(city string) (Airport, bool) {
	city = strings.TrimSpace(city)
	for _, a := range airports {
		if strings.EqualFold(a.City, city) {
			return a, true
		}
	}
	return Airport{}, false
}

// IsKnownCode reports whether code is an IATA code from the table.
func IsKnownCode(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, a := range airports {
		if a.Code == code {
			return true
		}
	}
	return false
}
