package models

import "testing"

func TestOutcome_Valid(t *testing.T) {
	if !OutcomeSuccess.Valid() {
		t.Error("success should be valid")
	}
	if !OutcomeFailure.Valid() {
		t.Error("failure should be valid")
	}
	if Outcome("").Valid() {
		t.Error("empty outcome should be invalid")
	}
	if Outcome("partial").Valid() {
		t.Error("unknown outcome should be invalid")
	}
}

func TestErrorKind_Valid(t *testing.T) {
	tests := []struct {
		name string
		kind ErrorKind
		want bool
	}{
		{"none is valid", ErrorKindNone, true},
		{"no_candidate is valid", ErrorKindNoCandidate, true},
		{"gate_denied is valid", ErrorKindGateDenied, true},
		{"transport is valid", ErrorKindTransport, true},
		{"timeout is valid", ErrorKindTimeout, true},
		{"cancelled is valid", ErrorKindCancelled, true},
		{"unknown kind is invalid", ErrorKind("oom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.Valid(); got != tt.want {
				t.Errorf("ErrorKind(%q).Valid() = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
