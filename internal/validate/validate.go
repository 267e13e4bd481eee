package validate

import (
	"fmt"
	"math"
	"strings"
)

// Text field length limits shared by the recency list, saved movies and activity log.
const (
	MaxTitleLength       = 500
	MaxOverviewLength    = 5000
	MaxImagePathLength   = 300
	MaxReleaseDateLength = 32
	MaxSearchQueryLength = 200
)

func checkLen(value string, max int, field string) string {
	if len(value) > max {
		return fmt.Sprintf("%s must be %d characters or fewer", field, max)
	}
	return ""
}

func Required(s, field string) string {
	if strings.TrimSpace(s) == "" {
		return field + " is required"
	}
	return ""
}

func Title(s string) string       { return checkLen(s, MaxTitleLength, "title") }
func Overview(s string) string    { return checkLen(s, MaxOverviewLength, "overview") }
func ImagePath(s string) string   { return checkLen(s, MaxImagePathLength, "image path") }
func ReleaseDate(s string) string { return checkLen(s, MaxReleaseDateLength, "release date") }
func SearchQuery(s string) string { return checkLen(s, MaxSearchQueryLength, "search query") }

func ItemID(id int) string {
	if id <= 0 {
		return "id must be a positive integer"
	}
	if id > math.MaxInt32 {
		return fmt.Sprintf("id must be at most %d (stored as a 32-bit integer)", math.MaxInt32)
	}
	return ""
}

func Rating(r float64) string {
	if r < 0 || r > 10 {
		return "vote_average must be between 0 and 10"
	}
	return ""
}

// First returns the first non-empty message, or "".
func First(messages ...string) string {
	for _, m := range messages {
		if m != "" {
			return m
		}
	}
	return ""
}

// FieldLimits returns a map of field names to max lengths for the /api/limits endpoint.
func FieldLimits() map[string]int {
	return map[string]int{
		"title":       MaxTitleLength,
		"overview":    MaxOverviewLength,
		"imagePath":   MaxImagePathLength,
		"releaseDate": MaxReleaseDateLength,
		"searchQuery": MaxSearchQueryLength,
	}
}
