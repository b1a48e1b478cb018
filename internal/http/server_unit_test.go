package http

import "testing"

func TestBearerToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":  "abc",
		"bearer abc":  "abc",
		"Bearer  abc": "abc",
		"":            "",
		"abc":         "",
		"Basic abc":   "",
	}
	for header, expect := range cases {
		if got := bearerToken(header); got != expect {
			t.Fatalf("bearerToken(%q) = %q, expected %q", header, got, expect)
		}
	}
}

func TestNormalizeTags(t *testing.T) {
	got := normalizeTags([]string{" Calculus I ", "", "  ", "Tue 16:00-18:00"})
	if len(got) != 2 || got[0] != "Calculus I" || got[1] != "Tue 16:00-18:00" {
		t.Fatalf("unexpected normalized tags: %v", got)
	}
	if got := normalizeTags(nil); len(got) != 0 {
		t.Fatalf("expected empty result for nil input")
	}
}
