package geoconsumer

import "fmt"

// Threshold is one of the five fixed visibility buckets (spec §3), ported
// from bvc_pergeovisibility.c's vis_thresholds_t enum.
type Threshold int

const (
	ThresholdMin1FFAsn Threshold = iota
	Threshold25Percent
	Threshold50Percent
	Threshold75Percent
	Threshold100Percent
	thresholdCount
)

func (t Threshold) metricSuffix() string {
	switch t {
	case ThresholdMin1FFAsn:
		return "min_1_ff_peer_asn"
	case Threshold25Percent:
		return "min_25pct_ff_peer_asns"
	case Threshold50Percent:
		return "min_50pct_ff_peer_asns"
	case Threshold75Percent:
		return "min_75pct_ff_peer_asns"
	case Threshold100Percent:
		return "min_100pct_ff_peer_asns"
	default:
		return fmt.Sprintf("threshold_%d", int(t))
	}
}

// visibilityCounters holds the three per-bucket counters from spec §3:
// visible prefix count, visible IP count, and the sum of full-feed peer
// ASN counts across every prefix that cleared the bucket.
type visibilityCounters struct {
	visiblePfxs    uint32
	visibleIPs     uint64
	ffPeerAsnsSum  uint32
}

// updateVisibilityCounters is a direct port of the original's
// update_visibility_counters: given the number of distinct full-feed peer
// ASNs observing a prefix (asnsCount) out of the global full-feed ASN
// count for IPv4 (ffTotal), increment every bucket whose threshold the
// ratio clears. Monotone: a higher bucket only increments when every
// lower bucket also does for the same prefix-peer event.
func updateVisibilityCounters(counters *[thresholdCount]visibilityCounters, netSize uint8, asnsCount, ffTotal int) {
	if ffTotal == 0 || asnsCount <= 0 {
		return
	}

	ips := uint64(1) << netSize

	bump := func(t Threshold) {
		c := &counters[t]
		c.visiblePfxs++
		c.visibleIPs += ips
		c.ffPeerAsnsSum += uint32(asnsCount)
	}

	bump(ThresholdMin1FFAsn)

	ratio := float64(asnsCount) / float64(ffTotal)
	if ratio == 1 {
		bump(Threshold100Percent)
	}
	if ratio >= 0.75 {
		bump(Threshold75Percent)
	}
	if ratio >= 0.5 {
		bump(Threshold50Percent)
	}
	if ratio >= 0.25 {
		bump(Threshold25Percent)
	}
}
