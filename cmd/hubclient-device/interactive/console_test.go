package interactive

import (
	"reflect"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		wantCmd  string
		wantArgs []string
		wantOK   bool
	}{
		{"", "", nil, false},
		{"   ", "", nil, false},
		{"STATUS", "status", []string{}, true},
		{"send  hello   world", "send", []string{"hello", "world"}, true},
		{"policy interval 120", "policy", []string{"interval", "120"}, true},
	}
	for _, tt := range tests {
		cmd, args, ok := parseLine(tt.line)
		if cmd != tt.wantCmd || ok != tt.wantOK || (ok && !reflect.DeepEqual(args, tt.wantArgs)) {
			t.Errorf("parseLine(%q) = %q, %v, %v, want %q, %v, %v", tt.line, cmd, args, ok, tt.wantCmd, tt.wantArgs, tt.wantOK)
		}
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"30", 30},
		{"-1", -1},
		{"true", true},
		{"false", false},
		{"10s", "10s"},
		{"sensor/1.0", "sensor/1.0"},
	}
	for _, tt := range tests {
		if got := ParseValue(tt.in); got != tt.want {
			t.Errorf("ParseValue(%q) = %v (%T), want %v (%T)", tt.in, got, got, tt.want, tt.want)
		}
	}
}
