package geoip

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/oschwald/maxminddb-golang"
	"github.com/streamie/streamie/internal/httputil"
)

// Resolver maps client addresses to ISO country codes. Without a database
// every lookup answers "".
type Resolver struct {
	db *maxminddb.Reader
}

type geoResult struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func New(dbPath string) (*Resolver, error) {
	if dbPath == "" {
		return &Resolver{}, nil
	}
	db, err := maxminddb.Open(dbPath)
	if err != nil {
		slog.Warn("geoip: failed to open database, geolocation disabled", "path", dbPath, "error", err)
		return &Resolver{}, nil
	}
	slog.Info("geoip: loaded database", "path", dbPath)
	return &Resolver{db: db}, nil
}

func (r *Resolver) Country(ipStr string) string {
	if r == nil || r.db == nil || ipStr == "" {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	var result geoResult
	if err := r.db.Lookup(ip, &result); err != nil {
		return ""
	}
	return result.Country.ISOCode
}

// CountryOf resolves the request's client address.
func (r *Resolver) CountryOf(req *http.Request) string {
	return r.Country(httputil.ClientIP(req))
}

func (r *Resolver) Close() error {
	if r != nil && r.db != nil {
		return r.db.Close()
	}
	return nil
}
