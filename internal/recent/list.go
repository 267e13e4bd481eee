// Package recent keeps each visitor's recently watched list: at most MaxItems
// entries, most recently touched first, no duplicate ids.
package recent

import (
	"encoding/json"
	"sync"

	"github.com/streamie/streamie/internal/validate"
)

// MaxItems bounds every list.
const MaxItems = 10

// MediaKind is the catalog's name for the item type.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindShow  MediaKind = "tv"
)

func (k MediaKind) Valid() bool {
	return k == KindMovie || k == KindShow
}

// ParseKind accepts the catalog spelling plus "show" as an alias for tv.
func ParseKind(s string) (MediaKind, bool) {
	switch s {
	case "movie":
		return KindMovie, true
	case "tv", "show":
		return KindShow, true
	}
	return "", false
}

// Item is one entry. The JSON layout is the persisted blob format.
type Item struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	PosterPath   *string   `json:"poster_path,omitempty"`
	BackdropPath *string   `json:"backdrop_path,omitempty"`
	Rating       *float64  `json:"vote_average,omitempty"`
	ReleaseDate  *string   `json:"release_date,omitempty"`
	Overview     *string   `json:"overview,omitempty"`
	MediaKind    MediaKind `json:"media_type"`
}

// Validate returns a descriptive reason when the item cannot be stored, or "".
// An empty media kind is accepted and means movie.
func (it Item) Validate() string {
	msg := validate.First(
		validate.ItemID(it.ID),
		validate.Required(it.Title, "title"),
		validate.Title(it.Title),
		validate.ImagePath(deref(it.PosterPath)),
		validate.ImagePath(deref(it.BackdropPath)),
		validate.ReleaseDate(deref(it.ReleaseDate)),
		validate.Overview(deref(it.Overview)),
	)
	if msg != "" {
		return msg
	}
	if it.Rating != nil {
		if msg := validate.Rating(*it.Rating); msg != "" {
			return msg
		}
	}
	if it.MediaKind != "" && !it.MediaKind.Valid() {
		return "media_type must be movie or tv"
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// List is safe for concurrent use.
type List struct {
	mu    sync.Mutex
	items []Item
	max   int
}

func NewList() *List {
	return &List{max: MaxItems}
}

// Touch moves item to the front, replacing any entry with the same id, then
// drops entries past the bound from the tail.
func (l *List) Touch(item Item) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := make([]Item, 0, len(l.items)+1)
	next = append(next, item)
	for _, existing := range l.items {
		if existing.ID != item.ID {
			next = append(next, existing)
		}
	}
	if len(next) > l.max {
		next = next[:l.max]
	}
	l.items = next
}

func (l *List) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = nil
}

// Items returns a copy, front to back.
func (l *List) Items() []Item {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Item, len(l.items))
	copy(out, l.items)
	return out
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// MarshalJSON encodes the whole list as one array.
func (l *List) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Items())
}

// Decode restores a list from a persisted blob. An empty, corrupt or
// unparsable blob yields an empty list and ok=false. Duplicates and overflow
// in the blob are dropped so the invariants hold after a restore.
func Decode(blob []byte) (list *List, ok bool) {
	list = NewList()
	if len(blob) == 0 {
		return list, false
	}

	var items []Item
	if err := json.Unmarshal(blob, &items); err != nil {
		return list, false
	}

	seen := make(map[int]bool, len(items))
	for _, item := range items {
		if item.ID <= 0 || seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		list.items = append(list.items, item)
		if len(list.items) == list.max {
			break
		}
	}
	return list, true
}
