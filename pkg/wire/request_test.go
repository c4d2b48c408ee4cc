package wire

import (
	"errors"
	"testing"
)

func TestParseCommandGet(t *testing.T) {
	cmd, err := ParseCommand([]byte("GET /dataset.bin"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Kind != CommandGet {
		t.Fatalf("kind mismatch: got %d", cmd.Kind)
	}
	if cmd.Name != "dataset.bin" {
		t.Fatalf("name mismatch: got %q", cmd.Name)
	}
}

func TestParseCommandResend(t *testing.T) {
	cmd, err := ParseCommand([]byte("RESEND 4203"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Kind != CommandResend {
		t.Fatalf("kind mismatch: got %d", cmd.Kind)
	}
	if cmd.Seq != 4203 {
		t.Fatalf("seq mismatch: got %d", cmd.Seq)
	}
}

func TestParseCommandRejectsGarbage(t *testing.T) {
	bad := []string{
		"",
		"GET",
		"GET ",
		"GET dataset.bin",
		"GET /",
		"GET /two words",
		"get /dataset.bin",
		"PUT /dataset.bin",
		"RESEND",
		"RESEND abc",
		"RESEND -1",
		"RESEND 4294967296",
		"RESEND 12 13",
	}
	for _, line := range bad {
		if _, err := ParseCommand([]byte(line)); !errors.Is(err, ErrRequestSyntax) {
			t.Fatalf("%q: want ErrRequestSyntax, got %v", line, err)
		}
	}
}

func TestRequestFramesRoundTrip(t *testing.T) {
	get := GetFrame("dataset.bin")
	if got := string(get.Payload); got != "GET /dataset.bin" {
		t.Fatalf("unexpected GET payload: %q", got)
	}
	if get.Type != TypeRequest {
		t.Fatalf("unexpected type: %d", get.Type)
	}

	resend := ResendFrame(99)
	cmd, err := ParseCommand(resend.Payload)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cmd.Kind != CommandResend || cmd.Seq != 99 {
		t.Fatalf("round trip mismatch: %+v", cmd)
	}
}
