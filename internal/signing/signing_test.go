package signing

import (
	"testing"
	"time"
)

func TestSigner(t *testing.T) {
	s := NewSigner([]byte("topsecret"), time.Minute)
	sig := s.Sign("doc123", 1700000000)
	if len(sig) == 0 {
		t.Fatalf("expected signature")
	}
	if !s.Validate("doc123", "1700000000", sig) {
		t.Fatalf("expected signature to validate")
	}
	if s.Validate("wrong", "1700000000", sig) {
		t.Fatalf("expected validation to fail for wrong document id")
	}
	if s.Validate("doc123", "42", sig) {
		t.Fatalf("expected validation to fail for wrong expiry")
	}
	if NewSigner([]byte("other"), time.Minute).Validate("doc123", "1700000000", sig) {
		t.Fatalf("expected validation to fail for another secret")
	}
}

func TestLinkVerify(t *testing.T) {
	s := NewSigner([]byte("topsecret"), 5*time.Minute)
	now := time.Unix(1700000000, 0)
	link := s.Link("doc-1", now)

	tests := []struct {
		name   string
		mutate func(q map[string][]string)
		at     time.Time
		want   error
	}{
		{name: "valid", at: now.Add(time.Minute)},
		{name: "expired", at: now.Add(6 * time.Minute), want: ErrExpired},
		{name: "tampered id", mutate: func(q map[string][]string) { q["document"] = []string{"doc-2"} }, at: now, want: ErrBadSignature},
		{name: "extended expiry", mutate: func(q map[string][]string) { q["expires"] = []string{"1900000000"} }, at: now, want: ErrBadSignature},
		{name: "missing signature", mutate: func(q map[string][]string) { delete(q, "signature") }, at: now, want: ErrMissingParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := link.Query()
			if tt.mutate != nil {
				tt.mutate(q)
			}
			id, err := s.Verify(q, tt.at)
			if tt.want == nil {
				if err != nil || id != "doc-1" {
					t.Fatalf("Verify = %q, %v; want doc-1", id, err)
				}
				return
			}
			if err != tt.want {
				t.Fatalf("Verify error = %v; want %v", err, tt.want)
			}
		})
	}
}
