package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", false, true},
		{"1", false, true},
		{"YES", false, true},
		{"on", false, true},
		{"false", true, false},
		{"0", true, false},
		{"no", true, false},
		{"OFF", true, false},
		{"", true, true},
		{"", false, false},
		{"maybe", true, true},
		{"maybe", false, false},
		{" true ", false, true},
	}
	for _, tc := range cases {
		t.Setenv("TEXTLOOP_TEST_BOOL", tc.value)
		if got := ParseBoolEnv("TEXTLOOP_TEST_BOOL", tc.defaultValue); got != tc.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tc.value, tc.defaultValue, got, tc.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue int
		want         int
	}{
		{"42", 0, 42},
		{"-7", 0, -7},
		{" 10 ", 0, 10},
		{"", 5, 5},
		{"abc", 5, 5},
		{"1.5", 5, 5},
	}
	for _, tc := range cases {
		t.Setenv("TEXTLOOP_TEST_INT", tc.value)
		if got := ParseIntEnv("TEXTLOOP_TEST_INT", tc.defaultValue); got != tc.want {
			t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", tc.value, tc.defaultValue, got, tc.want)
		}
	}
}

func TestParseFloatEnv(t *testing.T) {
	cases := []struct {
		value        string
		defaultValue float64
		want         float64
	}{
		{"2.5", 0, 2.5},
		{"1", 0, 1},
		{"", 0.5, 0.5},
		{"abc", 0.5, 0.5},
	}
	for _, tc := range cases {
		t.Setenv("TEXTLOOP_TEST_FLOAT", tc.value)
		if got := ParseFloatEnv("TEXTLOOP_TEST_FLOAT", tc.defaultValue); got != tc.want {
			t.Errorf("ParseFloatEnv(%q, %g) = %g, want %g", tc.value, tc.defaultValue, got, tc.want)
		}
	}
}
