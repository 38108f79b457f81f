//go:build linux

package sysmem

import "testing"

func TestParseStatm(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		page int
		want uint64
		ok   bool
	}{
		{"6123 2048 512 1 0 3000 0\n", 4096, 2048 * 4096, true},
		{"10 3", 16384, 3 * 16384, true},
		{"10", 4096, 0, false},
		{"10 x 1", 4096, 0, false},
		{"10 3", 0, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseStatm(tc.in, tc.page)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseStatm(%q, %d) = %d,%v; want %d,%v", tc.in, tc.page, got, ok, tc.want, tc.ok)
		}
	}
}

// Current RSS can shrink; the peak never does.
func TestRSSBytes_BoundedByPeak(t *testing.T) {
	t.Parallel()

	cur := RSSBytes()
	if cur == 0 {
		t.Fatal("RSSBytes() = 0")
	}
	if peak := PeakRSSBytes(); cur > peak {
		t.Fatalf("RSSBytes() = %d exceeds PeakRSSBytes() = %d", cur, peak)
	}
}
