// Package geoconsumer implements the per-geo-visibility consumer (spec
// §4.6), a direct Go port of bvc_pergeovisibility.c: for each IPv4 prefix
// above a mask-length threshold, tag it with the countries its address
// space falls in, then bucket it into the five visibility thresholds per
// country based on how many distinct full-feed peer ASNs observed it.
package geoconsumer

import (
	"context"
	"fmt"
	"time"

	"github.com/bgpview/client/internal/bgverr"
	"github.com/bgpview/client/internal/geoip"
	"github.com/bgpview/client/internal/pipeline"
	"github.com/bgpview/client/internal/tskp"
	"github.com/bgpview/client/internal/view"
	"go.uber.org/zap"
)

// countryInfo is the Go analogue of pergeo_info_t: per-view observed
// prefixes/ASNs plus the five pre-allocated threshold buckets and their
// key package slots.
type countryInfo struct {
	name string

	// Reset every view.
	originASNs map[uint32]struct{}
	counters   [thresholdCount]visibilityCounters

	// Pre-allocated key ids, one triple per threshold bucket.
	pfxKeyID [thresholdCount]int
	ipsKeyID [thresholdCount]int
	asnKeyID [thresholdCount]int

	// originASNsKeyID is the per-country, non-threshold origin-ASN-set
	// size (spec §3 Country table "a set of origin-ASNs observed this
	// view"; bvc_pergeovisibility.c:386-399,586 via asns_idx).
	originASNsKeyID int
}

// genMetricIDs holds the key package ids for the consumer's top-level
// (non-per-country) metrics.
type genMetricIDs struct {
	cacheMisses         int
	cacheHits           int
	arrivalDelay        int
	processedDelay      int
	processingTime      int
	maxNumCountriesPfx  int
	avgNumCountriesPfx  int
	numVisiblePfx       int
	maxRecordsPerPfx    int
}

// Consumer is the per-geo-visibility pipeline.Consumer.
type Consumer struct {
	provider geoip.Provider
	logger   *zap.Logger

	kpGen *tskp.KeyPackage
	kpV4  *tskp.KeyPackage

	countries map[string]*countryInfo
	gen       genMetricIDs

	// maxRecordsPerPfx is a running maximum across views (spec §9 Open
	// Question: preserved, never reset).
	maxRecordsPerPfx int

	metricPrefix string
}

// New builds an uninitialised Consumer; call Init before registering it
// with a pipeline.Manager.
func New(provider geoip.Provider, kpGenBackend, kpV4Backend tskp.Backend, metricPrefix string) *Consumer {
	return &Consumer{
		provider:     provider,
		kpGen:        tskp.New(kpGenBackend),
		kpV4:         tskp.New(kpV4Backend),
		countries:    make(map[string]*countryInfo),
		metricPrefix: metricPrefix,
	}
}

func (c *Consumer) ID() pipeline.ConsumerID { return pipeline.ConsumerPerGeoVisibility }

// Init enumerates the provider's country set and pre-allocates a
// countryInfo plus five threshold buckets' worth of key package slots for
// each, matching the original's create_per_cc_metrics/create_gen_metrics.
func (c *Consumer) Init(logger *zap.Logger) error {
	c.logger = logger

	metas, err := c.provider.Countries(context.Background())
	if err != nil {
		return fmt.Errorf("geoconsumer: loading countries: %w", err)
	}

	for _, m := range metas {
		info := &countryInfo{name: m.CountryName, originASNs: make(map[uint32]struct{})}
		for t := Threshold(0); t < thresholdCount; t++ {
			suffix := t.metricSuffix()
			info.pfxKeyID[t] = c.kpV4.AddKey(c.metricName(m.Continent, m.CountryCode, suffix, "visible_prefixes_cnt"))
			info.ipsKeyID[t] = c.kpV4.AddKey(c.metricName(m.Continent, m.CountryCode, suffix, "visible_ips_cnt"))
			info.asnKeyID[t] = c.kpV4.AddKey(c.metricName(m.Continent, m.CountryCode, suffix, "ff_peer_asns_sum"))
		}
		info.originASNsKeyID = c.kpV4.AddKey(c.countryMetricName(m.Continent, m.CountryCode, "origin_asns_cnt"))
		c.countries[m.CountryCode] = info
	}

	c.gen = genMetricIDs{
		cacheMisses:        c.kpGen.AddKey(c.genMetricName("cache_misses_cnt")),
		cacheHits:          c.kpGen.AddKey(c.genMetricName("cache_hits_cnt")),
		arrivalDelay:       c.kpGen.AddKey(c.genMetricName("arrival_delay")),
		processedDelay:     c.kpGen.AddKey(c.genMetricName("processed_delay")),
		processingTime:     c.kpGen.AddKey(c.genMetricName("processing_time")),
		maxNumCountriesPfx: c.kpGen.AddKey(c.genMetricName("max_numcountries_perpfx")),
		avgNumCountriesPfx: c.kpGen.AddKey(c.genMetricName("avg_numcountries_perpfx")),
		numVisiblePfx:      c.kpGen.AddKey(c.genMetricName("num_visible_pfx")),
		maxRecordsPerPfx:   c.kpGen.AddKey(c.genMetricName("max_records_perpfx")),
	}

	return nil
}

// metricName names a per-country, per-threshold metric (spec §6
// "…v4.visibility_threshold.{bucket}.{metric}", dimensioned by both
// continent and iso2 country code, matching create_per_cc_metrics).
func (c *Consumer) metricName(continent, countryCode, threshold, metric string) string {
	return fmt.Sprintf("%s_v4_visibility_threshold_%s_%s_%s_%s", c.metricPrefix, continent, countryCode, threshold, metric)
}

// countryMetricName names a per-country metric with no threshold
// dimension (spec §6 "{prefix}.prefix-visibility.geo.netacuity.{continent}.{iso2}.v4.{metric}",
// distinct from the threshold variant).
func (c *Consumer) countryMetricName(continent, countryCode, metric string) string {
	return fmt.Sprintf("%s_v4_visibility_%s_%s_%s", c.metricPrefix, continent, countryCode, metric)
}

func (c *Consumer) genMetricName(metric string) string {
	return fmt.Sprintf("%s_%s", c.metricPrefix, metric)
}

func (c *Consumer) Destroy() {}

// prefixAgg accumulates, across every peer observation of one prefix in
// this view, the full-feed peer id set and the origin ASNs attributed by
// full-feed peers — the inputs to update_visibility_counters.
type prefixAgg struct {
	ffPeers      map[view.PeerID]struct{}
	ffOriginASNs map[uint32]struct{}
}

// memoEntry is what's attached to a prefix's per-view user-data slot: the
// distinct country codes a geolocation lookup returned, so a second
// lookup for the same prefix in the same view never occurs.
type memoEntry struct {
	countries []string
}

func noopDestroy(any) {}

// ProcessView implements pipeline.Consumer. It asserts
// chain_state.visibility_computed, geotags and buckets every qualifying
// IPv4 prefix, then flushes both key packages at the view's timestamp.
func (c *Consumer) ProcessView(_ uint8, v view.View, state *pipeline.ChainState) error {
	if !state.VisibilityComputed {
		return bgverr.Wrap(bgverr.Precondition, "geoconsumer: visibility consumer must run first")
	}

	arrivalStart := time.Now()

	for _, info := range c.countries {
		info.originASNs = make(map[uint32]struct{})
		info.counters = [thresholdCount]visibilityCounters{}
	}
	cacheMisses, cacheHits := 0, 0
	numVisiblePfx := 0
	maxNumCountriesPerPfx := 0
	totalCountryAssignments := 0

	byPrefix := make(map[view.PrefixKey]*prefixAgg)
	v.Tuples(func(t view.Tuple) bool {
		if t.Prefix.Version != view.AFIv4 {
			return true
		}
		agg, ok := byPrefix[t.Prefix]
		if !ok {
			agg = &prefixAgg{ffPeers: make(map[view.PeerID]struct{}), ffOriginASNs: make(map[uint32]struct{})}
			byPrefix[t.Prefix] = agg
		}
		ffPeers, isFF := state.FullFeedPeerIDs[view.AFIv4]
		if !isFF {
			return true
		}
		if _, ok := ffPeers[t.Peer]; !ok {
			return true
		}
		agg.ffPeers[t.Peer] = struct{}{}
		agg.ffOriginASNs[t.Origin.OriginASN()] = struct{}{}
		return true
	})

	ud := v.UserData()

	for prefix, agg := range byPrefix {
		if prefix.MaskLen < state.MaskLenCutoff {
			continue
		}
		asnsCount := len(agg.ffPeers)
		numVisiblePfx++

		var countries []string
		if cached, ok := ud.Get(prefix); ok {
			cacheHits++
			countries = cached.(memoEntry).countries
		} else {
			cacheMisses++
			records, err := c.provider.Lookup(context.Background(), prefix.BaseAddress, prefix.MaskLen)
			if err != nil {
				return fmt.Errorf("geoconsumer: geolocation lookup for %s/%d: %w", prefix.BaseAddress, prefix.MaskLen, err)
			}
			if len(records) > c.maxRecordsPerPfx {
				c.maxRecordsPerPfx = len(records)
			}
			seen := make(map[string]struct{}, len(records))
			for _, r := range records {
				if _, dup := seen[r.CountryCode]; dup {
					continue
				}
				seen[r.CountryCode] = struct{}{}
				countries = append(countries, r.CountryCode)
			}
			if err := ud.Set(prefix, memoEntry{countries: countries}, noopDestroy); err != nil {
				return fmt.Errorf("geoconsumer: attaching memo: %w", err)
			}
		}

		netSize := uint8(32 - prefix.MaskLen)
		matched := 0
		for _, cc := range countries {
			info, ok := c.countries[cc]
			if !ok {
				c.logger.Warn("unknown country code from geolocation provider", zap.String("country_code", cc))
				continue
			}
			matched++
			updateVisibilityCounters(&info.counters, netSize, asnsCount, state.FullFeedASNCount)
			for asn := range agg.ffOriginASNs {
				info.originASNs[asn] = struct{}{}
			}
		}
		if matched > maxNumCountriesPerPfx {
			maxNumCountriesPerPfx = matched
		}
		totalCountryAssignments += matched
	}

	for _, info := range c.countries {
		for t := Threshold(0); t < thresholdCount; t++ {
			c.kpV4.Set(info.pfxKeyID[t], float64(info.counters[t].visiblePfxs))
			c.kpV4.Set(info.ipsKeyID[t], float64(info.counters[t].visibleIPs))
			c.kpV4.Set(info.asnKeyID[t], float64(info.counters[t].ffPeerAsnsSum))
		}
		c.kpV4.Set(info.originASNsKeyID, float64(len(info.originASNs)))
	}
	if err := c.kpV4.Flush(v.Timestamp()); err != nil {
		return fmt.Errorf("geoconsumer: flushing v4 key package: %w", err)
	}

	avgNumCountriesPerPfx := 0.0
	if numVisiblePfx > 0 {
		avgNumCountriesPerPfx = float64(totalCountryAssignments) / float64(numVisiblePfx)
	}

	arrivalDelay := arrivalStart.Sub(v.Timestamp())
	processedDelay := time.Since(v.Timestamp())

	c.kpGen.Set(c.gen.cacheMisses, float64(cacheMisses))
	c.kpGen.Set(c.gen.cacheHits, float64(cacheHits))
	c.kpGen.Set(c.gen.arrivalDelay, arrivalDelay.Seconds())
	c.kpGen.Set(c.gen.processedDelay, processedDelay.Seconds())
	c.kpGen.Set(c.gen.processingTime, (processedDelay - arrivalDelay).Seconds())
	c.kpGen.Set(c.gen.maxNumCountriesPfx, float64(maxNumCountriesPerPfx))
	c.kpGen.Set(c.gen.avgNumCountriesPfx, avgNumCountriesPerPfx)
	c.kpGen.Set(c.gen.numVisiblePfx, float64(numVisiblePfx))
	c.kpGen.Set(c.gen.maxRecordsPerPfx, float64(c.maxRecordsPerPfx))

	if err := c.kpGen.Flush(v.Timestamp()); err != nil {
		return fmt.Errorf("geoconsumer: flushing gen key package: %w", err)
	}

	return nil
}
