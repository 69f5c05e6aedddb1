package geoip

import (
	"context"
	"net/netip"
)

// MemoryProvider is an in-memory Provider for geoconsumer tests: a flat
// list of Records to return from every Lookup call plus a fixed country
// list, avoiding a Postgres dependency in unit tests.
type MemoryProvider struct {
	LookupResult []Record
	CountryList  []CountryMeta
	LookupCalls  int
}

func (m *MemoryProvider) Lookup(_ context.Context, _ netip.Addr, _ int) ([]Record, error) {
	m.LookupCalls++
	return m.LookupResult, nil
}

func (m *MemoryProvider) Countries(context.Context) ([]CountryMeta, error) {
	return m.CountryList, nil
}
