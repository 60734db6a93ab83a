package stream

import (
	"testing"
)

func TestParseInboundEnvelope(t *testing.T) {
	raw := []byte(`{"type":"error","code":"RATE_LIMIT_EXCEEDED","message":"slow down","retryAfter":5}`)
	f, err := parseInbound(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Type != FrameError || f.Code != CodeRateLimitExceeded || f.RetryAfter != 5 {
		t.Errorf("envelope: got %+v", f)
	}
}

func TestParseInboundMissingType(t *testing.T) {
	if _, err := parseInbound([]byte(`{"data":{}}`)); err == nil {
		t.Error("frame without type accepted")
	}
}

func TestParseInboundMalformed(t *testing.T) {
	if _, err := parseInbound([]byte(`{not json`)); err == nil {
		t.Error("malformed frame accepted")
	}
	if _, err := parseInbound(nil); err == nil {
		t.Error("empty frame accepted")
	}
}

func TestParseTicks(t *testing.T) {
	raw := []byte(`{"type":"ticks","data":[{"instrument_token":101,"last_price":2500.5,"volume":12000}]}`)
	f, err := parseInbound(raw)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	ticks, err := parseTicks(f.Data)
	if err != nil {
		t.Fatalf("parse ticks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("ticks: got %d, want 1", len(ticks))
	}
	if ticks[0].InstrumentToken != 101 || ticks[0].LastPrice != 2500.5 || ticks[0].Volume != 12000 {
		t.Errorf("tick fields: got %+v", ticks[0])
	}
}

func TestModeValidation(t *testing.T) {
	for _, m := range []Mode{ModeLTP, ModeQuote, ModeFull} {
		if !m.Valid() {
			t.Errorf("%q rejected", m)
		}
	}
	for _, m := range []Mode{"", "depth", "LTP"} {
		if m.Valid() {
			t.Errorf("%q accepted", m)
		}
	}
}
