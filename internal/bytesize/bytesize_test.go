package bytesize

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "4096", 4096, false},
		{"bytes suffix", "4096B", 4096, false},
		{"kibibytes", "1Ki", 1024, false},
		{"mebibytes", "64Mi", 64 * 1024 * 1024, false},
		{"mebibytes long", "64MiB", 64 * 1024 * 1024, false},
		{"gibibytes", "1Gi", 1024 * 1024 * 1024, false},
		{"kilobytes", "1K", 1000, false},
		{"megabytes", "100MB", 100 * 1000 * 1000, false},
		{"fractional", "1.5Ki", 1536, false},
		{"case insensitive", "64mi", 64 * 1024 * 1024, false},
		{"with spaces", "  64 Mi  ", 64 * 1024 * 1024, false},
		{"empty", "", 0, true},
		{"garbage unit", "10XB", 0, true},
		{"no number", "Mi", 0, true},
		{"negative", "-1Ki", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{512, "512B"},
		{2 * KiB, "2.00KiB"},
		{64 * MiB, "64.00MiB"},
		{3 * GiB, "3.00GiB"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("(%d).String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("128Mi")); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if b != 128*MiB {
		t.Errorf("UnmarshalText = %d, want %d", b, 128*MiB)
	}
	if err := b.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText should reject invalid input")
	}
}
