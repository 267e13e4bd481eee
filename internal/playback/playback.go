// Package playback builds third-party player URLs and gates them behind sign-in.
package playback

import (
	"errors"
	"strconv"
	"strings"

	"github.com/streamie/streamie/internal/recent"
)

const DefaultTemplate = "https://vidsrc.xyz/embed/{kind}/{id}"

var ErrInvalid = errors.New("kind must be movie or tv and id must be a positive integer")

// URL substitutes {kind} and {id} into template. An empty template means
// DefaultTemplate.
func URL(template string, kind recent.MediaKind, id int) (string, error) {
	if !kind.Valid() || id <= 0 {
		return "", ErrInvalid
	}
	if template == "" {
		template = DefaultTemplate
	}
	return strings.NewReplacer("{kind}", string(kind), "{id}", strconv.Itoa(id)).Replace(template), nil
}
