package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/oschwald/maxminddb-golang"

	"github.com/ppiankov/iocscore/internal/model"
)

// geoRecord covers the fields we read from GeoLite2/GeoIP2 City, Country
// and ASN databases
type geoRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
	Location struct {
		Latitude  *float64 `maxminddb:"latitude"`
		Longitude *float64 `maxminddb:"longitude"`
	} `maxminddb:"location"`
	ASN *uint32 `maxminddb:"autonomous_system_number"`
}

type lookuper interface {
	Lookup(ip net.IP, result any) error
	Close() error
}

// GeoIP resolves country, coordinates and ASN for IP indicators from
// MaxMind databases
type GeoIP struct {
	readers []lookuper
}

// OpenGeoIP opens every database in paths. City (or Country) and ASN
// databases are usually combined.
func OpenGeoIP(paths ...string) (*GeoIP, error) {
	g := &GeoIP{}
	for _, p := range paths {
		r, err := maxminddb.Open(p)
		if err != nil {
			_ = g.Close()
			return nil, fmt.Errorf("failed to open geoip database %s: %w", p, err)
		}
		g.readers = append(g.readers, r)
	}
	return g, nil
}

func (g *GeoIP) Name() string { return "geoip" }

// Enrich looks the address up in every database and merges the results
func (g *GeoIP) Enrich(_ context.Context, t model.IndicatorType, value string) (model.Enrichment, error) {
	if t != model.TypeIP {
		return model.Enrichment{}, ErrNotApplicable
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return model.Enrichment{}, fmt.Errorf("geoip: %w", err)
	}
	ip := net.IP(addr.Unmap().AsSlice())

	var out model.Enrichment
	for _, r := range g.readers {
		var rec geoRecord
		if err := r.Lookup(ip, &rec); err != nil {
			return out, fmt.Errorf("geoip lookup %s: %w", value, err)
		}
		out = out.FillMissing(rec.enrichment())
	}
	return out, nil
}

func (rec geoRecord) enrichment() model.Enrichment {
	var e model.Enrichment
	e.Country = strings.ToUpper(rec.Country.ISOCode)
	if e.Country == "" {
		e.Country = strings.ToUpper(rec.RegisteredCountry.ISOCode)
	}
	if rec.Location.Latitude != nil && rec.Location.Longitude != nil {
		e.Coordinates = &model.GeoPoint{Latitude: *rec.Location.Latitude, Longitude: *rec.Location.Longitude}
	}
	if rec.ASN != nil {
		asn := *rec.ASN
		e.ASN = &asn
	}
	return e
}

// Close releases the memory-mapped databases
func (g *GeoIP) Close() error {
	var errs []error
	for _, r := range g.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	g.readers = nil
	return errors.Join(errs...)
}
