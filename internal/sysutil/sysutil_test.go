package sysutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestSetLogLevel(t *testing.T) {
	orig := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(orig) })

	want := map[string]zerolog.Level{
		"trace":     zerolog.TraceLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"warning":   zerolog.WarnLevel,
		"Error":     zerolog.ErrorLevel,
		"disabled":  zerolog.Disabled,
		"":          zerolog.InfoLevel,
		"verbose":   zerolog.InfoLevel,
	}
	for in, lvl := range want {
		zerolog.SetGlobalLevel(zerolog.PanicLevel)
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != lvl {
			t.Errorf("SetLogLevel(%q) = %v; want %v", in, got, lvl)
		}
	}
}

func TestConfigureLogger(t *testing.T) {
	origLevel, origLogger, origFmt := zerolog.GlobalLevel(), log.Logger, zerolog.TimeFieldFormat
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(origLevel)
		log.Logger = origLogger
		zerolog.TimeFieldFormat = origFmt
	})

	var buf bytes.Buffer
	ConfigureLogger(&buf, "warn", false)
	log.Info().Msg("hidden")
	log.Warn().Str("digest_id", "d-1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line must be filtered at warn: %s", out)
	}
	if !strings.Contains(out, `"digest_id":"d-1"`) || !strings.Contains(out, `"time":`) {
		t.Fatalf("expected JSON line with timestamp, got %s", out)
	}

	buf.Reset()
	ConfigureLogger(&buf, "debug", true)
	log.Debug().Msg("pretty")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") || !strings.Contains(buf.String(), "pretty") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" ", "\t"}, ""},
		{[]string{"", " digest-svc ", "fallback"}, " digest-svc "},
		{[]string{"otel-name", "go-location-digest"}, "otel-name"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Errorf("FirstNonEmpty(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
