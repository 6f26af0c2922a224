package types

import "testing"

func TestNewAnalysisID(t *testing.T) {
	a, err := NewAnalysisID()
	if err != nil {
		t.Fatalf("failed to generate id: %v", err)
	}
	b, err := NewAnalysisID()
	if err != nil {
		t.Fatalf("failed to generate id: %v", err)
	}

	if a == b {
		t.Error("expected different ids")
	}
	if !ValidAnalysisID(a) {
		t.Errorf("expected %q to be valid", a)
	}
	if a > b {
		t.Errorf("expected ids in creation order, got %s > %s", a, b)
	}
}

func TestValidAnalysisID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", false},
		{"   ", false},
		{"not-a-uuid", false},
		{"0190b7c2-7a3e-7c41-8b9e-4f3c2a1d0e5f", true},
	}
	for _, tt := range tests {
		if got := ValidAnalysisID(tt.in); got != tt.want {
			t.Errorf("ValidAnalysisID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
