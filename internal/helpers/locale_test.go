package helpers

import (
	"strings"
	"testing"
)

const dutchSample = `De Belastingdienst stelt dat u voor de aangifte van de inkomstenbelasting
alle gegevens over het afgelopen jaar bij de hand moet hebben. Als u een eigen woning
heeft dan kunt u de rente van de hypotheek aftrekken. Voor ondernemers gelden aparte
regels die onder andere afhangen van de rechtsvorm van de onderneming.`

func TestLooksDutch(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"dutch paragraph", dutchSample, true},
		{"english paragraph", strings.Repeat("This text is written entirely in the English language about taxation rules. ", 6), false},
		{"too short", "De aangifte moet voor 1 mei binnen zijn.", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LooksDutch(tc.text); got != tc.want {
				t.Fatalf("LooksDutch = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLooksDutchRejectsForeignScript(t *testing.T) {
	t.Parallel()
	// Dutch function words padded with a dominant non-Latin block.
	text := dutchSample + " " + strings.Repeat("налоговая декларация обязательна ", 40)
	if LooksDutch(text) {
		t.Fatalf("dominant foreign script must be rejected")
	}
}
