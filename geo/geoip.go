// Package geo resolves client addresses to ISO country codes for ban
// notifications and the management API.
package geo

import (
	"net"

	"ipsguard/logger"

	"github.com/oschwald/geoip2-golang"
)

type Locator struct {
	db *geoip2.Reader
}

// NewLocator opens the MaxMind country database at dbPath. A missing or
// unreadable database yields a Locator that resolves nothing.
func NewLocator(dbPath string) *Locator {
	if dbPath == "" {
		return &Locator{}
	}
	db, err := geoip2.Open(dbPath)
	if err != nil {
		logger.Warn("GeoIP lookups disabled: database not loaded", "path", dbPath, "err", err, "tip", "Download GeoLite2-Country.mmdb from MaxMind to enable country enrichment")
		return &Locator{}
	}
	return &Locator{db: db}
}

func (l *Locator) Enabled() bool {
	return l != nil && l.db != nil
}

// Country returns the ISO code for addr, which may carry a port. Unknown
// or unparseable addresses return "".
func (l *Locator) Country(addr string) string {
	if !l.Enabled() {
		return ""
	}
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return ""
	}
	record, err := l.db.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (l *Locator) Close() error {
	if !l.Enabled() {
		return nil
	}
	return l.db.Close()
}
