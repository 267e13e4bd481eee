// Package catalog talks to the TMDB API. Raw responses are converted into
// tagged Items at the boundary; anything that is not a movie or show with an
// id and a title never leaves this package.
package catalog

import (
	"fmt"
	"strings"
)

type Kind string

const (
	Movie Kind = "movie"
	TV    Kind = "tv"
)

func (k Kind) Valid() bool {
	return k == Movie || k == TV
}

// ParseKind accepts "movie", "tv" and "show".
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "movie":
		return Movie, true
	case "tv", "show":
		return TV, true
	}
	return "", false
}

type Item struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Overview     string  `json:"overview,omitempty"`
	PosterPath   string  `json:"poster_path,omitempty"`
	BackdropPath string  `json:"backdrop_path,omitempty"`
	Rating       float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date,omitempty"`
	MediaKind    Kind    `json:"media_type"`
	GenreIDs     []int   `json:"genre_ids,omitempty"`
	Popularity   float64 `json:"popularity,omitempty"`
}

type Page[T any] struct {
	Page         int `json:"page"`
	TotalPages   int `json:"totalPages"`
	TotalResults int `json:"totalResults"`
	Results      []T `json:"results"`
}

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Language struct {
	Code        string `json:"code"`
	EnglishName string `json:"englishName"`
	Name        string `json:"name"`
}

// StatusError is a non-2xx answer from the catalog.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog %s returned status %d", e.Endpoint, e.StatusCode)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

type rawItem struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   *string `json:"poster_path"`
	BackdropPath *string `json:"backdrop_path"`
	VoteAverage  float64 `json:"vote_average"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	MediaType    string  `json:"media_type"`
	GenreIDs     []int   `json:"genre_ids"`
	Popularity   float64 `json:"popularity"`
}

// toItem applies the boundary rules. fallback is used when the entry carries
// no media_type, as discover and recommendation results do.
func (r rawItem) toItem(fallback Kind) (Item, bool) {
	if r.ID <= 0 {
		return Item{}, false
	}
	kind := fallback
	if r.MediaType != "" {
		k, ok := ParseKind(r.MediaType)
		if !ok {
			return Item{}, false
		}
		kind = k
	}
	if !kind.Valid() {
		return Item{}, false
	}

	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = strings.TrimSpace(r.Name)
	}
	if title == "" {
		return Item{}, false
	}

	release := r.ReleaseDate
	if release == "" {
		release = r.FirstAirDate
	}

	it := Item{
		ID:          r.ID,
		Title:       title,
		Overview:    r.Overview,
		Rating:      r.VoteAverage,
		ReleaseDate: release,
		MediaKind:   kind,
		GenreIDs:    r.GenreIDs,
		Popularity:  r.Popularity,
	}
	if r.PosterPath != nil {
		it.PosterPath = *r.PosterPath
	}
	if r.BackdropPath != nil {
		it.BackdropPath = *r.BackdropPath
	}
	return it, true
}

type rawPage struct {
	Page         int       `json:"page"`
	TotalPages   int       `json:"total_pages"`
	TotalResults int       `json:"total_results"`
	Results      []rawItem `json:"results"`
}

func (r rawPage) toPage(fallback Kind) Page[Item] {
	p := Page[Item]{
		Page:         r.Page,
		TotalPages:   r.TotalPages,
		TotalResults: r.TotalResults,
		Results:      make([]Item, 0, len(r.Results)),
	}
	for _, raw := range r.Results {
		if it, ok := raw.toItem(fallback); ok {
			p.Results = append(p.Results, it)
		}
	}
	return p
}

type rawGenres struct {
	Genres []Genre `json:"genres"`
}

type rawLanguage struct {
	Code        string `json:"iso_639_1"`
	EnglishName string `json:"english_name"`
	Name        string `json:"name"`
}
