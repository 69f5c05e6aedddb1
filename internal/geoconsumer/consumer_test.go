package geoconsumer

import (
	"net/netip"
	"testing"
	"time"

	"github.com/bgpview/client/internal/geoip"
	"github.com/bgpview/client/internal/pipeline"
	"github.com/bgpview/client/internal/tskp"
	"github.com/bgpview/client/internal/view"
	"go.uber.org/zap"
)

func newTestConsumer(t *testing.T, provider *geoip.MemoryProvider) (*Consumer, *tskp.MemoryBackend, *tskp.MemoryBackend) {
	t.Helper()
	genBackend := tskp.NewMemoryBackend()
	v4Backend := tskp.NewMemoryBackend()
	c := New(provider, genBackend, v4Backend, "bgpview_client")
	if err := c.Init(zap.NewNop()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return c, genBackend, v4Backend
}

func computedState(maskLenCutoff, ffCount int, ffPeers ...view.PeerID) *pipeline.ChainState {
	set := make(map[view.PeerID]struct{})
	for _, p := range ffPeers {
		set[p] = struct{}{}
	}
	return &pipeline.ChainState{
		FullFeedPeerIDs:    map[view.AFI]map[view.PeerID]struct{}{view.AFIv4: set},
		FullFeedASNCount:   ffCount,
		MaskLenCutoff:      maskLenCutoff,
		VisibilityComputed: true,
	}
}

func TestConsumer_PreconditionFailsWithoutVisibility(t *testing.T) {
	provider := &geoip.MemoryProvider{CountryList: []geoip.CountryMeta{{CountryCode: "US", CountryName: "United States", Continent: "NA"}}}
	c, _, _ := newTestConsumer(t, provider)

	state := &pipeline.ChainState{VisibilityComputed: false}
	mv := view.NewMemView(time.Now(), nil)

	err := c.ProcessView(0, mv, state)
	if err == nil {
		t.Fatal("expected precondition error")
	}
}

func TestConsumer_ThresholdBucketsAndCacheMiss(t *testing.T) {
	provider := &geoip.MemoryProvider{
		CountryList:  []geoip.CountryMeta{{CountryCode: "US", CountryName: "United States", Continent: "NA"}},
		LookupResult: []geoip.Record{{CountryCode: "US", CoveredIPs: 256}},
	}
	c, genBackend, v4Backend := newTestConsumer(t, provider)

	prefix := view.PrefixKey{Version: view.AFIv4, BaseAddress: netip.MustParseAddr("1.2.3.0"), MaskLen: 24}
	tuples := []view.Tuple{
		{Prefix: prefix, Peer: 1, Origin: view.ASPathSegment{ASN: 100, IsPlain: true}},
		{Prefix: prefix, Peer: 2, Origin: view.ASPathSegment{ASN: 200, IsPlain: true}},
		{Prefix: prefix, Peer: 3, Origin: view.ASPathSegment{ASN: 300, IsPlain: true}}, // not full-feed
	}
	mv := view.NewMemView(time.Now(), tuples)

	// 4 total full-feed ASNs for v4; once the override below leaves only
	// peers 1 and 2 full-feed, 2 observed this prefix -> ratio 0.5.
	state := computedState(24, 4, 1, 2, 3)
	// Peer 3 is not in the full-feed set so only peers 1,2 count.
	state.FullFeedPeerIDs[view.AFIv4] = map[view.PeerID]struct{}{1: {}, 2: {}}

	if err := c.ProcessView(0, mv, state); err != nil {
		t.Fatalf("ProcessView: %v", err)
	}

	if provider.LookupCalls != 1 {
		t.Fatalf("expected exactly 1 geolocation lookup (cache miss), got %d", provider.LookupCalls)
	}

	last := v4Backend.Last()
	pfxCnt, ok := last.Value(c.metricName("NA", "US", ThresholdMin1FFAsn.metricSuffix(), "visible_prefixes_cnt"))
	if !ok || pfxCnt != 1 {
		t.Fatalf("expected min_1_ff_peer_asn visible_prefixes_cnt=1, got %v (ok=%v)", pfxCnt, ok)
	}
	ips25, ok := last.Value(c.metricName("NA", "US", Threshold25Percent.metricSuffix(), "visible_ips_cnt"))
	if !ok || ips25 != 256 {
		t.Fatalf("expected 25pct visible_ips_cnt=256, got %v (ok=%v)", ips25, ok)
	}
	pfx100, ok := last.Value(c.metricName("NA", "US", Threshold100Percent.metricSuffix(), "visible_prefixes_cnt"))
	if !ok || pfx100 != 0 {
		t.Fatalf("expected 100pct visible_prefixes_cnt=0 (asnsCount=2 of 4), got %v (ok=%v)", pfx100, ok)
	}

	// Peers 1 and 2 are full-feed and attributed origin ASNs 100 and 200
	// respectively; peer 3's ASN 300 never counts since peer 3 isn't
	// full-feed. origin_asns_cnt for US should therefore be 2.
	originASNs, ok := last.Value(c.countryMetricName("NA", "US", "origin_asns_cnt"))
	if !ok || originASNs != 2 {
		t.Fatalf("expected origin_asns_cnt=2, got %v (ok=%v)", originASNs, ok)
	}

	genLast := genBackend.Last()
	misses, _ := genLast.Value(c.genMetricName("cache_misses_cnt"))
	if misses != 1 {
		t.Fatalf("expected 1 cache miss, got %v", misses)
	}
	hits, _ := genLast.Value(c.genMetricName("cache_hits_cnt"))
	if hits != 0 {
		t.Fatalf("expected 0 cache hits, got %v", hits)
	}
}

func TestConsumer_UnknownCountryIsSkippedNotFatal(t *testing.T) {
	provider := &geoip.MemoryProvider{
		CountryList:  []geoip.CountryMeta{{CountryCode: "US", CountryName: "United States", Continent: "NA"}},
		LookupResult: []geoip.Record{{CountryCode: "ZZ", CoveredIPs: 1}},
	}
	c, _, _ := newTestConsumer(t, provider)

	prefix := view.PrefixKey{Version: view.AFIv4, BaseAddress: netip.MustParseAddr("9.9.9.0"), MaskLen: 24}
	tuples := []view.Tuple{{Prefix: prefix, Peer: 1, Origin: view.ASPathSegment{ASN: 1, IsPlain: true}}}
	mv := view.NewMemView(time.Now(), tuples)
	state := computedState(24, 1, 1)

	if err := c.ProcessView(0, mv, state); err != nil {
		t.Fatalf("expected unknown country to be logged and skipped, not fatal: %v", err)
	}
}
