// Package geoip is the Postgres-backed geolocation provider behind the
// geo-visibility consumer's country lookups. It mirrors the teacher's
// internal/db usage pattern (pgxpool.Pool acquired once, plain SQL, no
// ORM) applied to a read path instead of a write path.
package geoip

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one covered-address-count entry returned by Lookup, mirroring
// the original provider's "a set of records each carrying a country code
// and a covered address count" contract.
type Record struct {
	CountryCode string
	CoveredIPs  uint32
}

// CountryMeta describes one enumerable country, loaded at consumer
// startup so a GeoInfo entry and key package slots can be pre-allocated
// for every known country. Continent is a two-letter netacq-edge-style
// continent code (e.g. "NA", "EU", "AS") and is part of the metric
// name's dimension set (spec §6 "Metric naming"), not just descriptive
// metadata.
type CountryMeta struct {
	CountryCode string
	CountryName string
	Continent   string
}

// Provider is the black-box IP-to-geolocation lookup the geo-visibility
// consumer depends on; spec.md explicitly keeps its internals external.
type Provider interface {
	Lookup(ctx context.Context, base netip.Addr, maskLen int) ([]Record, error)
	Countries(ctx context.Context) ([]CountryMeta, error)
}

// PostgresProvider is the production Provider, backed by the geoip_blocks
// / geoip_locations / geoip_countries tables from migrations/0001.
type PostgresProvider struct {
	pool *pgxpool.Pool
}

func NewPostgresProvider(pool *pgxpool.Pool) *PostgresProvider {
	return &PostgresProvider{pool: pool}
}

const lookupQuery = `
SELECT c.country_code, masklen(b.network)
FROM geoip_blocks b
JOIN geoip_locations l ON l.location_id = b.location_id
JOIN geoip_countries c ON c.country_code = l.country_code
WHERE b.network && $1::inet`

// Lookup finds every geoip block overlapping the prefix (base/maskLen)
// and returns one Record per country, whose CoveredIPs is the total
// address count of that country's overlapping blocks.
func (p *PostgresProvider) Lookup(ctx context.Context, base netip.Addr, maskLen int) ([]Record, error) {
	prefix := fmt.Sprintf("%s/%d", base.String(), maskLen)

	rows, err := p.pool.Query(ctx, lookupQuery, prefix)
	if err != nil {
		return nil, fmt.Errorf("geoip: lookup %s: %w", prefix, err)
	}
	defer rows.Close()

	byCountry := make(map[string]uint32)
	var order []string
	for rows.Next() {
		var cc string
		var blockMaskLen int
		if err := rows.Scan(&cc, &blockMaskLen); err != nil {
			return nil, fmt.Errorf("geoip: scanning lookup row: %w", err)
		}
		if _, ok := byCountry[cc]; !ok {
			order = append(order, cc)
		}
		byCountry[cc] += 1 << (32 - blockMaskLen)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("geoip: iterating lookup rows: %w", err)
	}

	records := make([]Record, 0, len(order))
	for _, cc := range order {
		records = append(records, Record{CountryCode: cc, CoveredIPs: byCountry[cc]})
	}
	return records, nil
}

const countriesQuery = `SELECT country_code, country_name, country_continent FROM geoip_countries ORDER BY country_code`

func (p *PostgresProvider) Countries(ctx context.Context) ([]CountryMeta, error) {
	rows, err := p.pool.Query(ctx, countriesQuery)
	if err != nil {
		return nil, fmt.Errorf("geoip: countries: %w", err)
	}
	defer rows.Close()

	var out []CountryMeta
	for rows.Next() {
		var m CountryMeta
		if err := rows.Scan(&m.CountryCode, &m.CountryName, &m.Continent); err != nil {
			return nil, fmt.Errorf("geoip: scanning country row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("geoip: iterating country rows: %w", err)
	}
	return out, nil
}
