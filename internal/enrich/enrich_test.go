package enrich

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/iocscore/internal/logger"
	"github.com/ppiankov/iocscore/internal/model"
)

type fakeProvider struct {
	name  string
	out   model.Enrichment
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Enrich(context.Context, model.IndicatorType, string) (model.Enrichment, error) {
	f.calls++
	return f.out, f.err
}

func TestChainFillsMissingOnly(t *testing.T) {
	asn := uint32(13335)
	first := &fakeProvider{name: "a", out: model.Enrichment{Country: "US", ASN: &asn}}
	second := &fakeProvider{name: "b", out: model.Enrichment{Country: "NL", Coordinates: &model.GeoPoint{Latitude: 52.3, Longitude: 4.9}}}

	c := NewChain(logger.NewTestLogger(), first, second)
	got := c.Enrich(context.Background(), model.TypeIP, "1.1.1.1", model.Enrichment{Country: "DE"})

	assert.Equal(t, "DE", got.Country, "supplied field wins")
	require.NotNil(t, got.ASN)
	assert.Equal(t, asn, *got.ASN)
	require.NotNil(t, got.Coordinates)
	assert.Equal(t, 52.3, got.Coordinates.Latitude)
}

func TestChainSkipsFailingProviders(t *testing.T) {
	broken := &fakeProvider{name: "broken", err: errors.New("db corrupt")}
	na := &fakeProvider{name: "na", err: ErrNotApplicable}
	ok := &fakeProvider{name: "ok", out: model.Enrichment{Registrar: "NameSilo"}}

	c := NewChain(logger.NewTestLogger(), broken, na, ok)
	got := c.Enrich(context.Background(), model.TypeDomain, "evil.example", model.Enrichment{})

	assert.Equal(t, "NameSilo", got.Registrar)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	p := &fakeProvider{name: "p", out: model.Enrichment{Country: "US"}}
	c := NewChain(logger.NewTestLogger(), p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := c.Enrich(ctx, model.TypeIP, "1.1.1.1", model.Enrichment{})
	assert.True(t, got.IsEmpty())
	assert.Equal(t, 0, p.calls)
}

func TestNilChain(t *testing.T) {
	var c *Chain
	got := c.Enrich(context.Background(), model.TypeIP, "1.1.1.1", model.Enrichment{Country: "US"})
	assert.Equal(t, "US", got.Country)
	assert.Equal(t, 0, c.Len())
	assert.NoError(t, c.Close())
}

type fakeReader struct {
	rec    geoRecord
	err    error
	lastIP net.IP
}

func (f *fakeReader) Lookup(ip net.IP, result any) error {
	f.lastIP = ip
	if f.err != nil {
		return f.err
	}
	*(result.(*geoRecord)) = f.rec
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestGeoIPMergesDatabases(t *testing.T) {
	lat, lon := 0.0, 0.0
	city := &fakeReader{}
	city.rec.Country.ISOCode = "ru"
	city.rec.Location.Latitude = &lat
	city.rec.Location.Longitude = &lon

	asn := uint32(0)
	asnDB := &fakeReader{}
	asnDB.rec.ASN = &asn

	g := &GeoIP{readers: []lookuper{city, asnDB}}
	got, err := g.Enrich(context.Background(), model.TypeIP, "::ffff:5.6.7.8")
	require.NoError(t, err)

	assert.Equal(t, "RU", got.Country)
	require.NotNil(t, got.Coordinates, "(0,0) is a real location")
	require.NotNil(t, got.ASN, "ASN 0 is present")
	assert.Equal(t, net.IP{5, 6, 7, 8}, city.lastIP)
}

func TestGeoIPRegisteredCountryFallback(t *testing.T) {
	r := &fakeReader{}
	r.rec.RegisteredCountry.ISOCode = "NL"

	g := &GeoIP{readers: []lookuper{r}}
	got, err := g.Enrich(context.Background(), model.TypeIP, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "NL", got.Country)
	assert.Nil(t, got.Coordinates)
}

func TestGeoIPNotApplicable(t *testing.T) {
	g := &GeoIP{}
	_, err := g.Enrich(context.Background(), model.TypeDomain, "example.com")
	assert.ErrorIs(t, err, ErrNotApplicable)
}

func TestOpenGeoIPMissingFile(t *testing.T) {
	_, err := OpenGeoIP(filepath.Join(t.TempDir(), "missing.mmdb"))
	assert.Error(t, err)
}

func TestStaticTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whois.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
domain:
  Evil.Example.:
    registrar: NameSilo
    creation_date: 2025-01-02T00:00:00Z
ip:
  203.0.113.7:
    country: NL
    asn: 64500
`), 0o644))

	s, err := LoadStatic(path)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Len())

	got, err := s.Enrich(context.Background(), model.TypeDomain, "evil.example")
	require.NoError(t, err)
	assert.Equal(t, "NameSilo", got.Registrar)
	require.NotNil(t, got.CreationDate)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), got.CreationDate.UTC())

	got, err = s.Enrich(context.Background(), model.TypeIP, "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, got.ASN)
	assert.Equal(t, uint32(64500), *got.ASN)

	got, err = s.Enrich(context.Background(), model.TypeIP, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestStaticTableRejectsInvalidKeys(t *testing.T) {
	_, err := ParseStatic([]byte("ip:\n  not-an-ip: {country: US}\n"))
	assert.Error(t, err)
}
