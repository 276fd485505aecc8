package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLabelValid(t *testing.T) {
	for _, l := range []Label{LabelPhishing, LabelBenign, LabelUnknown} {
		if !l.Valid() {
			t.Errorf("expected %q to be valid", l)
		}
	}
	for _, l := range []Label{"", "suspicious", "PHISHING"} {
		if l.Valid() {
			t.Errorf("expected %q to be invalid", l)
		}
	}
}

func TestThreatTypesString(t *testing.T) {
	tests := []struct {
		name string
		v    Verdict
		want string
	}{
		{
			name: "empty",
			v:    Verdict{},
			want: "",
		},
		{
			name: "sorted and joined",
			v:    Verdict{ThreatTypes: []string{"SOCIAL_ENGINEERING", "MALWARE"}},
			want: "MALWARE;SOCIAL_ENGINEERING",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.v.ThreatTypesString()); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFormatTime(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	in := time.Date(2025, 6, 1, 12, 0, 0, 0, loc)
	if diff := cmp.Diff("2025-06-01T10:00:00Z", FormatTime(in)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
