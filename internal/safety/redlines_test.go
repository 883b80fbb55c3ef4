package safety

import "testing"

func TestCheckRedLines(t *testing.T) {
	tests := []struct {
		name    string
		message string
		trigger string
		flagged bool
	}{
		{"clean question", "Where is my box this month?", "", false},
		{"death threat", "I will kill you if this happens again", "death_threat", true},
		{"legal threat", "I am going to sue your company", "legal_threat", true},
		{"legal threat lawyer", "My lawyer will be in touch", "legal_threat", true},
		{"bank dispute", "I filed a chargeback with my bank", "bank_dispute", true},
		{"dispute the charge", "I will dispute the charge tomorrow", "bank_dispute", true},
		{"self harm", "Sometimes I think about suicide", "self_harm", true},
		{"violence", "There is a bomb in the package", "violence_threat", true},
		{"case insensitive", "I WILL SUE YOU", "legal_threat", true},
		{"word boundary", "Nashville delivery is late", "", false},
		{"court inside word ignored", "I bought a courtyard decoration", "", false},
		{"empty message", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, flagged := CheckRedLines(tt.message)
			if flagged != tt.flagged {
				t.Fatalf("CheckRedLines(%q) flagged = %v, want %v", tt.message, flagged, tt.flagged)
			}
			if trigger != tt.trigger {
				t.Errorf("CheckRedLines(%q) trigger = %q, want %q", tt.message, trigger, tt.trigger)
			}
		})
	}
}

func TestCheckRedLinesFirstMatchWins(t *testing.T) {
	// A message matching multiple rules reports the first in scan order.
	trigger, flagged := CheckRedLines("I will kill you and then sue you")
	if !flagged || trigger != "death_threat" {
		t.Fatalf("got (%q, %v), want (death_threat, true)", trigger, flagged)
	}
}
