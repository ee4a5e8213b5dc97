package match

import (
	"errors"
	"testing"
)

func TestReactionLiterals(t *testing.T) {
	cases := []struct {
		r    Reaction
		want string
	}{
		{ReactionHeart, "heart"},
		{ReactionLaugh, "laugh"},
		{ReactionWave, "wave"},
		{ReactionFire, "fire"},
		{Reaction(42), "unknown"},
	}
	for _, c := range cases {
		if got := c.r.String(); got != c.want {
			t.Errorf("String() = %q, want %q", got, c.want)
		}
	}
	if Reaction(42).IsValid() {
		t.Error("Reaction(42).IsValid() = true")
	}
	if !ReactionFire.IsValid() {
		t.Error("ReactionFire.IsValid() = false")
	}
}

func TestParseReaction(t *testing.T) {
	for _, r := range []Reaction{ReactionHeart, ReactionLaugh, ReactionWave, ReactionFire} {
		got, ok := ParseReaction(r.String())
		if !ok || got != r {
			t.Errorf("ParseReaction(%q) = %v, %v", r.String(), got, ok)
		}
	}
	if _, ok := ParseReaction("boom"); ok {
		t.Error("ParseReaction accepted unknown literal")
	}
	if _, ok := ParseReaction(""); ok {
		t.Error("ParseReaction accepted empty literal")
	}
}

func TestEncodeChat(t *testing.T) {
	data, err := encodeChat("hello there")
	if err != nil {
		t.Fatalf("encodeChat: %v", err)
	}
	want := `{"type":"chat","text":"hello there"}`
	if string(data) != want {
		t.Fatalf("encodeChat = %s, want %s", data, want)
	}
}

func TestEncodeReaction(t *testing.T) {
	data, err := encodeReaction(ReactionHeart)
	if err != nil {
		t.Fatalf("encodeReaction: %v", err)
	}
	want := `{"type":"reaction","value":"heart"}`
	if string(data) != want {
		t.Fatalf("encodeReaction = %s, want %s", data, want)
	}

	if _, err := encodeReaction(Reaction(42)); !errors.Is(err, ErrInvalidReaction) {
		t.Fatalf("encodeReaction(42) err = %v, want ErrInvalidReaction", err)
	}
}

func TestDecodeLinkPayload(t *testing.T) {
	p, err := decodeLinkPayload([]byte(`{"type":"chat","text":"hi"}`))
	if err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if p.Type != payloadTypeChat || p.Text != "hi" {
		t.Fatalf("decode chat = %+v", p)
	}

	p, err = decodeLinkPayload([]byte(`{"type":"reaction","value":"wave"}`))
	if err != nil {
		t.Fatalf("decode reaction: %v", err)
	}
	if p.Type != payloadTypeReaction || p.Value != "wave" {
		t.Fatalf("decode reaction = %+v", p)
	}

	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"presence"}`),
		[]byte(`{}`),
		[]byte(`42`),
	}
	for _, data := range bad {
		if _, err := decodeLinkPayload(data); !errors.Is(err, ErrMalformedPayload) {
			t.Errorf("decodeLinkPayload(%s) err = %v, want ErrMalformedPayload", data, err)
		}
	}
}
