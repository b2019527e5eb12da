package mpd

import (
	"reflect"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line     string
		wantName string
		wantArgs []string
	}{
		{`status`, "status", nil},
		{`setvol 50`, "setvol", []string{"50"}},
		{`SETVOL 50`, "setvol", []string{"50"}},
		{`add "Daft Punk/Discovery/01 One More Time.mp3"`, "add", []string{"Daft Punk/Discovery/01 One More Time.mp3"}},
		{`find artist "Daft Punk" album Discovery`, "find", []string{"artist", "Daft Punk", "album", "Discovery"}},
		{`add "with \"escaped\" quotes.mp3"`, "add", []string{`with "escaped" quotes.mp3`}},
		{`add ""`, "add", []string{""}},
		{`  status  `, "status", nil},
	}
	for _, tt := range tests {
		name, args, err := parseCommand(tt.line)
		if err != nil {
			t.Errorf("parseCommand(%q) error: %v", tt.line, err)
			continue
		}
		if name != tt.wantName {
			t.Errorf("parseCommand(%q) name = %q, want %q", tt.line, name, tt.wantName)
		}
		if len(args) != len(tt.wantArgs) || (len(args) > 0 && !reflect.DeepEqual(args, tt.wantArgs)) {
			t.Errorf("parseCommand(%q) args = %#v, want %#v", tt.line, args, tt.wantArgs)
		}
	}
}

func TestParseCommandEmpty(t *testing.T) {
	name, args, err := parseCommand("")
	if err != nil || name != "" || len(args) != 0 {
		t.Errorf("parseCommand(empty) = %q %v %v", name, args, err)
	}
}

func TestSplitQuotedErrors(t *testing.T) {
	for _, line := range []string{`add "unterminated`, `add "trailing escape\`} {
		if _, err := splitQuoted(line); err == nil {
			t.Errorf("splitQuoted(%q) should fail", line)
		}
	}
}
