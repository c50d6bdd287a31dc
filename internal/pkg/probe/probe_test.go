package probe

import "testing"

func TestMergeAccumulatesBits(t *testing.T) {
	agg := AggregateMap{}
	agg.Merge(Event{PID: 100, Capability: 0})
	agg.Merge(Event{PID: 100, Capability: 12})

	want := uint64(1<<0 | 1<<12)
	if agg[100] != want {
		t.Fatalf("agg[100] = %b, want %b", agg[100], want)
	}
}

func TestMergeBlacklistedPreservesPresenceWithoutBit(t *testing.T) {
	agg := AggregateMap{}
	agg.Merge(Event{PID: 7, Capability: 21, Blacklisted: true})

	mask, ok := agg[7]
	if !ok {
		t.Fatalf("expected pid 7 to remain present in the aggregate after a blacklisted sample")
	}
	if mask != 0 {
		t.Fatalf("expected a blacklisted sample to contribute no capability bit, got mask %b", mask)
	}
}

func TestMergeDoesNotClobberExistingBitsOnBlacklistedSample(t *testing.T) {
	agg := AggregateMap{}
	agg.Merge(Event{PID: 1, Capability: 3})
	agg.Merge(Event{PID: 1, Capability: 9, Blacklisted: true})

	if agg[1] != 1<<3 {
		t.Fatalf("agg[1] = %b, want %b", agg[1], uint64(1<<3))
	}
}
