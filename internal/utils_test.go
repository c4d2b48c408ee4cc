package internal

import "testing"

func TestParseTarget(t *testing.T) {
	addr, name, err := ParseTarget("10.0.0.5:5000/dataset.bin")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if addr != "10.0.0.5:5000" {
		t.Fatalf("addr = %q", addr)
	}
	if name != "dataset.bin" {
		t.Fatalf("name = %q", name)
	}
}

func TestParseTargetRejectsBadForms(t *testing.T) {
	bad := []string{
		"",
		"dataset.bin",
		"10.0.0.5/dataset.bin",
		"10.0.0.5:5000",
		"10.0.0.5:5000/",
		":5000/dataset.bin",
	}
	for _, target := range bad {
		if _, _, err := ParseTarget(target); err == nil {
			t.Fatalf("expected error for %q", target)
		}
	}
}

func TestHumanizeSize(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
	}
	for _, c := range cases {
		if got := HumanizeSize(c.in); got != c.want {
			t.Fatalf("HumanizeSize(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
