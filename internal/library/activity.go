package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mssola/useragent"

	"github.com/streamie/streamie/internal/database"
	"github.com/streamie/streamie/internal/geoip"
	"github.com/streamie/streamie/internal/metrics"
	"github.com/streamie/streamie/internal/validate"
)

// ErrInvalid marks input rejected before it reaches the database.
var ErrInvalid = errors.New("invalid input")

const (
	ActionView           = "view"
	ActionPlay           = "play"
	ActionPlayRestricted = "play_restricted"
	ActionSearch         = "search"
	ActionFilter         = "filter"
	ActionClearHistory   = "clear_history"
)

var validActions = map[string]bool{
	ActionView:           true,
	ActionPlay:           true,
	ActionPlayRestricted: true,
	ActionSearch:         true,
	ActionFilter:         true,
	ActionClearHistory:   true,
}

const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 100
)

type Activity struct {
	Action    string    `json:"action"`
	ItemID    *int      `json:"itemId,omitempty"`
	ItemTitle *string   `json:"itemTitle,omitempty"`
	Country   string    `json:"country,omitempty"`
	Browser   string    `json:"browser,omitempty"`
	OS        string    `json:"os,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Recorder appends to the activity log. Entries are never updated.
type Recorder struct {
	db  database.DBTX
	geo *geoip.Resolver
}

func NewRecorder(db database.DBTX, geo *geoip.Resolver) *Recorder {
	return &Recorder{db: db, geo: geo}
}

func (rec *Recorder) Record(r *http.Request, userID, action string, itemID int, itemTitle string) error {
	if userID == "" {
		return fmt.Errorf("%w: user is required", ErrInvalid)
	}
	if !validActions[action] {
		return fmt.Errorf("%w: unknown action %q", ErrInvalid, action)
	}
	if itemID < 0 {
		return fmt.Errorf("%w: item id must not be negative", ErrInvalid)
	}
	if msg := validate.Title(itemTitle); msg != "" {
		return fmt.Errorf("%w: %s", ErrInvalid, msg)
	}

	browser, os := clientAgent(r.UserAgent())
	_, err := rec.db.Exec(r.Context(),
		`INSERT INTO activity_log (user_id, action, item_id, item_title, country, browser, os)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, action, optionalInt(itemID), optionalString(itemTitle), rec.geo.CountryOf(r), browser, os,
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	metrics.ActivityRecordedTotal.WithLabelValues(action).Inc()
	return nil
}

// Recent returns up to limit entries for the user, newest first.
func (rec *Recorder) Recent(ctx context.Context, userID string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}
	if limit > MaxActivityLimit {
		limit = MaxActivityLimit
	}

	rows, err := rec.db.Query(ctx,
		`SELECT action, item_id, item_title, country, browser, os, created_at
		 FROM activity_log WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	entries := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.Action, &a.ItemID, &a.ItemTitle, &a.Country, &a.Browser, &a.OS, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return entries, nil
}

func clientAgent(header string) (browser, os string) {
	if header == "" {
		return "", ""
	}
	ua := useragent.New(header)
	name, _ := ua.Browser()
	if ua.Bot() {
		return name, "bot"
	}
	return name, ua.OS()
}

func optionalInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func optionalString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
