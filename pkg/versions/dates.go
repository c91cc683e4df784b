package versions

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/statutelab/lexharvest/models"
)

// datePattern captures the date phrase following an operative/effective
// marker in history text, e.g.
// "operative January 1, 2025" or "Effective 1/1/2021".
var datePattern = regexp.MustCompile(`(?i)(?:operative|effective)\s+(?:on\s+)?([A-Za-z]+ [0-9]{1,2}, [0-9]{4}|[0-9]{1,2}/[0-9]{1,2}/[0-9]{4})`)

// futureMarkers flag forward-looking language; historicalMarkers flag
// superseded or repealed versions.
var futureMarkers = []string{
	"becomes operative",
	"shall become operative",
	"becomes effective",
	"contingent upon",
	"to be determined",
}

var historicalMarkers = []string{
	"repealed",
	"superseded",
	"inoperative",
	"prior to",
}

// OperativeDate extracts the operative date from history text, normalized
// to YYYY-MM-DD. A missing or unparseable date returns "" — absence of a
// date is not an error.
func OperativeDate(history string) string {
	m := datePattern.FindStringSubmatch(history)
	if m == nil {
		return ""
	}
	parsed, err := dateparse.ParseAny(m[1])
	if err != nil {
		return ""
	}
	return parsed.Format("2006-01-02")
}

// StatusOf classifies a version from its history text and parsed
// operative date. The default is current; forward-looking language (or an
// operative date still in the future) marks a version future, repeal
// language marks it historical.
func StatusOf(history, operativeDate string, now time.Time) models.VersionStatus {
	lower := strings.ToLower(history)

	for _, marker := range historicalMarkers {
		if strings.Contains(lower, marker) {
			return models.VersionHistorical
		}
	}
	for _, marker := range futureMarkers {
		if strings.Contains(lower, marker) {
			return models.VersionFuture
		}
	}
	if operativeDate != "" {
		if d, err := time.Parse("2006-01-02", operativeDate); err == nil && d.After(now) {
			return models.VersionFuture
		}
	}
	return models.VersionCurrent
}
