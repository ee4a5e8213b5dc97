package state

import "testing"

func TestStatus_String(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusIdle, "idle"},
		{StatusGeneratingIdentity, "generating_identity"},
		{StatusMatching, "matching"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusDisconnected, "disconnected"},
		{StatusSignalingOffline, "signaling_offline"},
		{StatusReconnecting, "reconnecting"},
		{StatusError, "error"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		got := tt.s.String()
		if got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestStatus_IsValid(t *testing.T) {
	tests := []struct {
		s    Status
		want bool
	}{
		{StatusIdle, true},
		{StatusMatching, true},
		{StatusError, true},
		{Status(-1), false},
		{Status(99), false},
	}

	for _, tt := range tests {
		got := tt.s.IsValid()
		if got != tt.want {
			t.Errorf("Status(%d).IsValid() = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if !StatusError.IsTerminal() {
		t.Error("StatusError.IsTerminal() = false, want true")
	}
	for s := StatusIdle; s < StatusError; s++ {
		if s.IsTerminal() {
			t.Errorf("Status %q.IsTerminal() = true, want false", s)
		}
	}
}

func TestParseStatus(t *testing.T) {
	for s := StatusIdle; s <= StatusError; s++ {
		got, ok := ParseStatus(s.String())
		if !ok || got != s {
			t.Errorf("ParseStatus(%q) = (%v, %v), want (%v, true)", s.String(), got, ok, s)
		}
	}

	if _, ok := ParseStatus("nope"); ok {
		t.Error("ParseStatus(\"nope\") ok = true, want false")
	}
	if _, ok := ParseStatus(""); ok {
		t.Error("ParseStatus(\"\") ok = true, want false")
	}
}

func TestManager(t *testing.T) {
	m := NewManager()

	if got := m.Get(); got != StatusIdle {
		t.Fatalf("new Manager status = %v, want %v", got, StatusIdle)
	}

	m.Set(StatusMatching)
	if got := m.Get(); got != StatusMatching {
		t.Errorf("after Set: status = %v, want %v", got, StatusMatching)
	}
	if !m.Is(StatusMatching) {
		t.Error("Is(StatusMatching) = false, want true")
	}
	if m.Is(StatusConnected) {
		t.Error("Is(StatusConnected) = true, want false")
	}
}
