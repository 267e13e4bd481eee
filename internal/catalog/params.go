package catalog

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultSort = "popularity.desc"
	MaxPage     = 500
	MinYear     = 1870
	MaxYear     = 2100
)

var (
	sortKeyPattern  = regexp.MustCompile(`^[a-z_]+$`)
	languagePattern = regexp.MustCompile(`^[a-z]{2}$`)
)

// DiscoverParams are the filters of one discover request. Zero values mean
// unset.
type DiscoverParams struct {
	Page      int
	SortBy    string
	SortOrder string
	Genre     int
	Year      int
	Language  string
}

// NormalizeSort returns a TMDB sort_by value. A bare key takes order, or
// desc when order is empty. A key that already carries .asc or .desc keeps it
// and order is ignored.
func NormalizeSort(sortBy, order string) string {
	sortBy = strings.TrimSpace(strings.ToLower(sortBy))
	order = strings.TrimSpace(strings.ToLower(order))
	if sortBy == "" {
		sortBy = "popularity"
	}

	base, existing, _ := strings.Cut(sortBy, ".")
	switch {
	case existing == "asc" || existing == "desc":
		return base + "." + existing
	case order == "asc" || order == "desc":
		return base + "." + order
	default:
		return base + ".desc"
	}
}

// ParseDiscoverParams reads and validates the discover query string.
func ParseDiscoverParams(q url.Values) (DiscoverParams, error) {
	var p DiscoverParams
	var err error

	if p.Page, err = intParam(q, "page", 1, MaxPage); err != nil {
		return p, err
	}
	if p.Page == 0 {
		p.Page = 1
	}
	if p.Genre, err = intParam(q, "genre", 1, 1<<31-1); err != nil {
		return p, err
	}
	if p.Year, err = intParam(q, "year", MinYear, MaxYear); err != nil {
		return p, err
	}

	p.SortBy = strings.ToLower(strings.TrimSpace(q.Get("sort_by")))
	if p.SortBy != "" {
		base, _, _ := strings.Cut(p.SortBy, ".")
		if !sortKeyPattern.MatchString(base) {
			return p, fmt.Errorf("sort_by %q is not a valid sort key", p.SortBy)
		}
	}
	p.SortOrder = strings.ToLower(strings.TrimSpace(q.Get("sort_order")))
	if p.SortOrder != "" && p.SortOrder != "asc" && p.SortOrder != "desc" {
		return p, fmt.Errorf("sort_order must be asc or desc")
	}
	p.Language = strings.ToLower(strings.TrimSpace(q.Get("language")))
	if p.Language != "" && !languagePattern.MatchString(p.Language) {
		return p, fmt.Errorf("language must be a two-letter ISO 639-1 code")
	}
	return p, nil
}

// Filtered reports whether any filter beyond paging and the default sort is set.
func (p DiscoverParams) Filtered() bool {
	return p.Genre > 0 || p.Year > 0 || p.Language != "" ||
		NormalizeSort(p.SortBy, p.SortOrder) != DefaultSort
}

// Describe renders the filters for the activity log.
func (p DiscoverParams) Describe() string {
	parts := []string{"sort=" + NormalizeSort(p.SortBy, p.SortOrder)}
	if p.Genre > 0 {
		parts = append(parts, "genre="+strconv.Itoa(p.Genre))
	}
	if p.Year > 0 {
		parts = append(parts, "year="+strconv.Itoa(p.Year))
	}
	if p.Language != "" {
		parts = append(parts, "language="+p.Language)
	}
	return strings.Join(parts, ", ")
}

// query builds the TMDB discover parameters. The year filter is spelled
// differently for movies and shows.
func (p DiscoverParams) query(kind Kind) url.Values {
	v := url.Values{}
	page := p.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	v.Set("sort_by", NormalizeSort(p.SortBy, p.SortOrder))
	if p.Genre > 0 {
		v.Set("with_genres", strconv.Itoa(p.Genre))
	}
	if p.Year > 0 {
		if kind == TV {
			v.Set("first_air_date_year", strconv.Itoa(p.Year))
		} else {
			v.Set("primary_release_year", strconv.Itoa(p.Year))
		}
	}
	if p.Language != "" {
		v.Set("with_original_language", p.Language)
	}
	return v
}

// intParam parses an optional integer in [lo, hi]. Absent yields 0.
func intParam(q url.Values, name string, lo, hi int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}
