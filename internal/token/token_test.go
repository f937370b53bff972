package token

import (
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []LocalToken{
		{MessageID: 0, Random: 0},
		{MessageID: 1, Random: 1},
		{MessageID: 12345, Random: 67890},
		{MessageID: ^uint64(0), Random: ^uint64(0)},
	}

	for _, tok := range cases {
		got, err := Parse(tok.String())
		if err != nil {
			t.Fatalf("Parse(%s) error: %v", tok.String(), err)
		}
		if got != tok {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, tok)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, bad := range []string{"", "deadbeef", "not-hex-not-hex-not-hex-not-hex", "0000000000000000000000000000zz"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Parse(%q) expected error, got nil", bad)
		}
	}
}

func TestNewProducesDistinctTokens(t *testing.T) {
	t.Parallel()

	a, err := New(42)
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(42)
	if err != nil {
		t.Fatal(err)
	}

	if a.MessageID != 42 || b.MessageID != 42 {
		t.Fatalf("expected message id 42, got %d and %d", a.MessageID, b.MessageID)
	}
	if a.Random == b.Random {
		t.Errorf("expected distinct random halves, both were %d", a.Random)
	}
}

func TestFromPartsMatchesLegacyCallback(t *testing.T) {
	t.Parallel()

	// legacy callback format "c:{message_id}:{token}:{action}" supplies the
	// two halves separately rather than as one hex blob.
	got := FromParts(12345, 67890)
	want := LocalToken{MessageID: 12345, Random: 67890}
	if got != want {
		t.Errorf("FromParts(12345, 67890) = %+v, want %+v", got, want)
	}
}
