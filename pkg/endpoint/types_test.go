package endpoint

import "testing"

func TestIdentityLess(t *testing.T) {
	tests := []struct {
		a, b Identity
		want bool
	}{
		{"a1", "b2", true},
		{"b2", "a1", false},
		{"a1", "a1", false},
		{"", "a", true},
		{"a", "ab", true},
	}

	for _, tt := range tests {
		if got := tt.a.Less(tt.b); got != tt.want {
			t.Errorf("Identity(%q).Less(%q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindUnavailablePeer, "unavailable-peer"},
		{KindDisconnected, "disconnected"},
		{KindNetwork, "network"},
		{KindProtocol, "protocol"},
		{ErrorKind(42), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestErrorKindRecoverable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindUnavailablePeer, true},
		{KindDisconnected, true},
		{KindNetwork, true},
		{KindProtocol, false},
		{KindUnknown, false},
	}

	for _, tt := range tests {
		if got := tt.kind.Recoverable(); got != tt.want {
			t.Errorf("%v.Recoverable() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
