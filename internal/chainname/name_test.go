package chainname

import "testing"

func TestRoundTrip(t *testing.T) {
	cases := []string{"eosio", "eosio.token", "alice", "a"}
	for _, s := range cases {
		n := ToName(s)
		got := String(n)
		if got != s {
			t.Errorf("ToName/String(%q) round-trip = %q", s, got)
		}
	}
}

func TestEmptyName(t *testing.T) {
	if got := String(0); got != "" {
		t.Errorf("String(0) = %q, want empty", got)
	}
}
