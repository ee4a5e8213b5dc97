package signaling

import "testing"

func TestChannelForRegion(t *testing.T) {
	tests := []struct {
		region string
		want   string
	}{
		{"us", "presence-us"},
		{"eu", "presence-eu"},
		{"asia", "presence-asia"},
		{"US", "presence-us"},
		{" eu ", "presence-eu"},
		{"", DefaultChannel},
		{"mars", DefaultChannel},
	}

	for _, tt := range tests {
		t.Run(tt.region, func(t *testing.T) {
			if got := ChannelForRegion(tt.region); got != tt.want {
				t.Errorf("ChannelForRegion(%q) = %q, want %q", tt.region, got, tt.want)
			}
		})
	}
}

func TestRegions(t *testing.T) {
	regions := Regions()
	if len(regions) != 3 {
		t.Fatalf("Regions() returned %d entries, want 3", len(regions))
	}
	for i := 1; i < len(regions); i++ {
		if regions[i-1] >= regions[i] {
			t.Errorf("Regions() not sorted: %q before %q", regions[i-1], regions[i])
		}
	}
}
