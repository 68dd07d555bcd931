package main

import (
	"runtime"
	"testing"
)

func TestLookupCommand(t *testing.T) {
	config := map[string]string{
		"On":  "echo on",
		"off": "echo off",
		"Dim": "",
	}

	tests := []struct {
		state string
		want  string
		ok    bool
	}{
		{"On", "echo on", true},
		{"on", "echo on", true},
		{"Off", "echo off", true},
		{"Dim", "", false},
		{"Blink", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			got, ok := lookupCommand(config, tt.state)
			if ok != tt.ok || got != tt.want {
				t.Errorf("lookupCommand(%q) = %q, %v; want %q, %v", tt.state, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	out, err := runCommand(`echo "$MUDRA_STATE $MUDRA_COUNT $MUDRA_DEVICE_ID"`, Request{State: "On", Count: 4, DeviceID: "lamp"})
	if err != nil {
		t.Fatalf("runCommand() error = %v", err)
	}
	if out != "On 4 lamp" {
		t.Errorf("runCommand() = %q, want %q", out, "On 4 lamp")
	}

	if _, err := runCommand("echo boom >&2; exit 3", Request{State: "Off"}); err == nil {
		t.Error("expected error for failing command")
	}
}
