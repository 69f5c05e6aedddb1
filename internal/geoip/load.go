package geoip

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadFiles bulk-loads netacq-edge-style flat files (countries, locations,
// blocks — the three file paths spec §4.6 "Startup" names) into Postgres
// via pgx.CopyFrom, replacing the original provider's in-process file
// parsing with a one-time import into the geoip_* tables.
//
// Each file is plain CSV with no header row:
//
//	countries: country_code,country_name,continent
//	locations: location_id,country_code
//	blocks:    network,location_id   (network in CIDR form, e.g. "1.2.3.0/24")
func LoadFiles(ctx context.Context, pool *pgxpool.Pool, countriesPath, locationsPath, blocksPath string) error {
	if err := loadCountries(ctx, pool, countriesPath); err != nil {
		return err
	}
	if err := loadLocations(ctx, pool, locationsPath); err != nil {
		return err
	}
	if err := loadBlocks(ctx, pool, blocksPath); err != nil {
		return err
	}
	return nil
}

func loadCountries(ctx context.Context, pool *pgxpool.Pool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("geoip: opening countries file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 3

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("geoip: parsing countries file: %w", err)
		}
		rows = append(rows, []any{rec[0], rec[1], rec[2]})
	}

	_, err = pool.CopyFrom(ctx,
		pgx.Identifier{"geoip_countries"},
		[]string{"country_code", "country_name", "country_continent"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("geoip: copying countries: %w", err)
	}
	return nil
}

func loadLocations(ctx context.Context, pool *pgxpool.Pool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("geoip: opening locations file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("geoip: parsing locations file: %w", err)
		}
		locationID, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return fmt.Errorf("geoip: parsing location id %q: %w", rec[0], err)
		}
		rows = append(rows, []any{locationID, rec[1]})
	}

	_, err = pool.CopyFrom(ctx,
		pgx.Identifier{"geoip_locations"},
		[]string{"location_id", "country_code"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("geoip: copying locations: %w", err)
	}
	return nil
}

func loadBlocks(ctx context.Context, pool *pgxpool.Pool, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("geoip: opening blocks file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("geoip: parsing blocks file: %w", err)
		}
		locationID, err := strconv.ParseInt(rec[1], 10, 64)
		if err != nil {
			return fmt.Errorf("geoip: parsing location id %q: %w", rec[1], err)
		}
		rows = append(rows, []any{rec[0], locationID})
	}

	_, err = pool.CopyFrom(ctx,
		pgx.Identifier{"geoip_blocks"},
		[]string{"network", "location_id"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("geoip: copying blocks: %w", err)
	}
	return nil
}
