package models

import "testing"

func TestAggregationPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		statuses map[NetworkID]OnlineStatus
		expected OnlineStatus
	}{
		{
			name: "online wins over invisible and idle",
			statuses: map[NetworkID]OnlineStatus{
				NetworkMobile:   StatusIdle,
				NetworkFacebook: StatusInvisible,
				NetworkGoogle:   StatusOnline,
			},
			expected: StatusOnline,
		},
		{
			name: "invisible wins over idle",
			statuses: map[NetworkID]OnlineStatus{
				NetworkMobile:   StatusIdle,
				NetworkFacebook: StatusInvisible,
			},
			expected: StatusInvisible,
		},
		{
			name: "idle wins over offline",
			statuses: map[NetworkID]OnlineStatus{
				NetworkMobile:   StatusOffline,
				NetworkFacebook: StatusIdle,
			},
			expected: StatusIdle,
		},
		{
			name: "offline only when nothing better",
			statuses: map[NetworkID]OnlineStatus{
				NetworkMobile: StatusOffline,
			},
			expected: StatusOffline,
		},
		{
			name:     "no entries means offline",
			statuses: nil,
			expected: StatusOffline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUser("u1", tt.statuses)
			if u.Aggregated != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, u.Aggregated)
			}
		})
	}
}

func TestRemoveNetworkRecomputesAggregate(t *testing.T) {
	u := NewUser("me", map[NetworkID]OnlineStatus{
		NetworkPC:     StatusOnline,
		NetworkMobile: StatusIdle,
	})
	if u.Aggregated != StatusOnline {
		t.Fatalf("expected online before removal, got %s", u.Aggregated)
	}

	u.RemoveNetwork(NetworkPC)

	if len(u.Presences) != 1 {
		t.Fatalf("expected 1 presence entry left, got %d", len(u.Presences))
	}
	if u.Aggregated != StatusIdle {
		t.Errorf("expected idle after pc removal, got %s", u.Aggregated)
	}
}

func TestParseStatusUnknownFallsBack(t *testing.T) {
	if got := ParseStatus("away-ish"); got != StatusOffline {
		t.Errorf("expected offline for unknown status, got %s", got)
	}
	if got := ParseStatus("online"); got != StatusOnline {
		t.Errorf("expected online, got %s", got)
	}
}

func TestBagPreservesInsertionOrder(t *testing.T) {
	b := NewBag()
	b.Set("c", Str("1"))
	b.Set("a", Str("2"))
	b.Set("b", Str("3"))
	b.Set("a", Str("4")) // re-set keeps position

	keys := b.Keys()
	if len(keys) != 3 || keys[0] != "c" || keys[1] != "a" || keys[2] != "b" {
		t.Errorf("expected [c a b], got %v", keys)
	}
	if v, _ := b.Get("a"); v.Str != "4" {
		t.Errorf("expected re-set value, got %q", v.Str)
	}
}
