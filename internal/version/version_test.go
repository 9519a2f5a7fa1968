package version

import (
	"regexp"
	"strings"
	"testing"
)

var kafkaClientID = regexp.MustCompile(`\A[A-Za-z0-9._-]+\z`)

func withBuild(t *testing.T, v, c, d string) {
	t.Helper()
	prevV, prevC, prevD := version, commit, date
	version, commit, date = v, c, d
	t.Cleanup(func() {
		version, commit, date = prevV, prevC, prevD
	})
}

func TestDefaults(t *testing.T) {
	if GetVersion() != "dev" {
		t.Fatalf("expected dev build by default, got %q", GetVersion())
	}
	if UserAgent() != "orderms-dev" {
		t.Fatalf("unexpected default user agent %q", UserAgent())
	}
}

func TestUserAgentIsValidKafkaClientID(t *testing.T) {
	cases := map[string]string{
		"v1.2.3":             "orderms-v1.2.3",
		"v1.2.3+build/7":     "orderms-v1.2.3_build_7",
		"1.0.0-rc.1 (dirty)": "orderms-1.0.0-rc.1__dirty_",
	}

	for raw, want := range cases {
		withBuild(t, raw, "abc123", "2026-10-19")

		got := UserAgent()
		if got != want {
			t.Errorf("UserAgent() with version %q = %q, want %q", raw, got, want)
		}
		if !kafkaClientID.MatchString(got) || !kafkaClientID.MatchString(got+"-dlq-reprocess") {
			t.Errorf("client id %q is not accepted by kafka", got)
		}
	}
}

func TestString(t *testing.T) {
	withBuild(t, "v2.0.0", "deadbeef", "2026-10-19")

	s := String()
	for _, part := range []string{"version=v2.0.0", "commit=deadbeef", "date=2026-10-19"} {
		if !strings.Contains(s, part) {
			t.Errorf("String() = %q, missing %q", s, part)
		}
	}
}
