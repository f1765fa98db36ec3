package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	// "GMT+1", "UTC-04:00", "GMT +0530"
	offsetSuffix = regexp.MustCompile(`(?i)\s*\b(?:GMT|UTC)\s*([+-])(\d{1,2})(?::?(\d{2}))?$`)
	// a zone name following a clock time or meridiem: "10:04 PM EDT", "15:04 (PST)"
	zoneNameSuffix = regexp.MustCompile(`(?:\d|[AaPp]\.?[Mm]\.?)\s+(\(?([A-Za-z]{1,5})\)?)$`)
)

// zoneOffsets resolves the abbreviations seen on US and UK financial sites.
// Abbreviations shared by several zones (IST, CST in Asia) are left out so
// they are rejected rather than guessed.
var zoneOffsets = map[string]int{
	"UTC": 0, "GMT": 0, "Z": 0,
	"EST": -5, "EDT": -4,
	"CST": -6, "CDT": -5,
	"MST": -7, "MDT": -6,
	"PST": -8, "PDT": -7,
	"BST": 1, "CET": 1, "CEST": 2,
	"HKT": 8, "SGT": 8, "JST": 9, "KST": 9,
}

// wallClockLayouts are tried before dateparse for human readable dates;
// input is upper-cased first so am/pm match
var wallClockLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006 3:04PM",
	"January 2, 2006 3:04:05 PM",
	"January 2, 2006 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04PM",
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006 15:04",
	"Mon, 02 Jan 2006 15:04:05",
	"Mon, 2 Jan 2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseTimestamp parses the timestamp formats seen on the scraped sites:
// ISO-8601 datetime attributes, unix epoch data attributes and human
// readable dates with an optional zone suffix. Times without a zone are
// taken as UTC. Unknown zone names fail the parse instead of shifting the
// date. The result is in UTC.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}

	rest, loc, ok := splitZone(raw)
	if !ok {
		return time.Time{}, false
	}

	t, ok := parseWallClock(rest, loc)
	if !ok {
		return time.Time{}, false
	}
	if t.Year() < 1970 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// splitZone removes a trailing zone designation and returns the location it
// names. Input without one is returned whole with UTC.
func splitZone(raw string) (string, *time.Location, bool) {
	if m := offsetSuffix.FindStringSubmatchIndex(raw); m != nil {
		hours, _ := strconv.Atoi(raw[m[4]:m[5]])
		minutes := 0
		if m[6] >= 0 {
			minutes, _ = strconv.Atoi(raw[m[6]:m[7]])
		}
		if hours > 14 || minutes > 59 {
			return "", nil, false
		}
		offset := hours*3600 + minutes*60
		if raw[m[2]:m[3]] == "-" {
			offset = -offset
		}
		return strings.TrimSpace(raw[:m[0]]), time.FixedZone(strings.TrimSpace(raw[m[0]:]), offset), true
	}

	if m := zoneNameSuffix.FindStringSubmatchIndex(raw); m != nil {
		name := strings.ToUpper(raw[m[4]:m[5]])
		switch strings.ReplaceAll(name, ".", "") {
		case "AM", "PM":
			return raw, time.UTC, true
		}
		hours, known := zoneOffsets[name]
		if !known {
			return "", nil, false
		}
		return strings.TrimSpace(raw[:m[2]]), time.FixedZone(name, hours*3600), true
	}

	return raw, time.UTC, true
}

func parseWallClock(s string, loc *time.Location) (time.Time, bool) {
	upper := strings.ToUpper(s)
	for _, layout := range wallClockLayouts {
		if t, err := time.ParseInLocation(layout, upper, loc); err == nil {
			return t, true
		}
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
