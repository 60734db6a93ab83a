package config

import (
	"reflect"
	"testing"
	"time"
)

func TestParseTokens(t *testing.T) {
	cases := []struct {
		in   string
		want []int64
	}{
		{"99926000", []int64{99926000}},
		{"101, 102 ,103", []int64{101, 102, 103}},
		{"101,,abc,-5,102", []int64{101, 102}},
		{"", []int64{}},
	}
	for _, tc := range cases {
		c := &Config{SubscribeTokens: tc.in}
		got := c.ParseTokens()
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ParseTokens(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("TEST_COOLDOWN", "45s")
	if got := getDurationEnv("TEST_COOLDOWN", 0); got.Seconds() != 45 {
		t.Errorf("got %v, want 45s", got)
	}

	t.Setenv("TEST_COOLDOWN", "garbage")
	if got := getDurationEnv("TEST_COOLDOWN", 60*time.Second); got != 60*time.Second {
		t.Errorf("invalid value: got %v, want fallback", got)
	}
}
