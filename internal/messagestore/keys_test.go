package messagestore

import (
	"bytes"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestMessageKeyOrdering(t *testing.T) {
	a := ulid.Make()
	b := ulid.Make()

	cases := []struct {
		name string
		lo   []byte
		hi   []byte
	}{
		{"send time", messageKey(1, 10, b), messageKey(1, 11, a)},
		{"negative send time", messageKey(1, -1, b), messageKey(1, 0, a)},
		{"message id tie-break", messageKey(1, 10, a), messageKey(1, 10, b)},
		{"room before send time", messageKey(1, 1<<40, b), messageKey(2, -1<<40, a)},
	}
	for _, tc := range cases {
		if bytes.Compare(tc.lo, tc.hi) >= 0 {
			t.Errorf("%s: keys not ordered", tc.name)
		}
	}
}

func TestParseMessageKey(t *testing.T) {
	id := ulid.Make()
	ts, got, err := parseMessageKey(messageKey(3, -42, id))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts != -42 || got != id {
		t.Fatalf("got (%d, %s), want (-42, %s)", ts, got, id)
	}

	if _, _, err := parseMessageKey([]byte("m/short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestPrefixBounds(t *testing.T) {
	p := roomPrefix(7)
	end := prefixEnd(p)
	k := messageKey(7, 1<<62, ulid.ULID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff})
	if !bytes.HasPrefix(k, p) || bytes.Compare(k, end) >= 0 {
		t.Fatal("message key outside its room bounds")
	}
	if bytes.Compare(messageKey(8, -1<<62, ulid.ULID{}), end) < 0 {
		t.Fatal("next room key inside bounds")
	}
}
