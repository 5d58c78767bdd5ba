package moderation

import "testing"

func TestNewFilter(t *testing.T) {
	f := NewFilter()
	if f == nil {
		t.Fatal("NewFilter returned nil")
	}
	if len(f.blockedTerms) == 0 {
		t.Fatal("NewFilter created an empty filter")
	}
}

func TestCheck_BlockedTerms(t *testing.T) {
	f := NewFilterWithTerms([]string{"badword", "offensive"})

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"exact match", "badword", true, "badword"},
		{"in sentence", "this is badword here", true, "badword"},
		{"case insensitive", "BADWORD", true, "badword"},
		{"mixed case", "BaDwOrD", true, "badword"},
		{"substring match", "mybadwording", true, "badword"},
		{"second term", "that was Offensive", true, "offensive"},
		{"clean message", "hello world", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
			if tt.blocked && result.Reason != "blocked_term" {
				t.Errorf("Check(%q).Reason = %q, want %q", tt.input, result.Reason, "blocked_term")
			}
		})
	}
}

func TestCheck_SpamPatterns(t *testing.T) {
	f := NewFilterWithTerms(nil)

	tests := []struct {
		name    string
		input   string
		blocked bool
		term    string
	}{
		{"http url", "check out http://spam.example/deal", true, "url"},
		{"www url", "visit www.totally-legit.example now", true, "url"},
		{"bare domain", "free-stuff.xyz/win", true, "url"},
		{"phone dashed", "call +1-555-123-4567 today", true, "phone"},
		{"phone dotted", "reach me at 555.123.4567", true, "phone"},
		{"char flood", "niceeeeee", true, "char_flood"},
		{"word flood", "buy buy buy now", true, "word_flood"},
		{"version string ok", "running v2.0 since 3.14", false, ""},
		{"short number ok", "i have 100 points", false, ""},
		{"normal text ok", "какой хороший день", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := f.Check(tt.input)
			if result.Blocked != tt.blocked {
				t.Errorf("Check(%q).Blocked = %v, want %v", tt.input, result.Blocked, tt.blocked)
			}
			if tt.blocked && result.Term != tt.term {
				t.Errorf("Check(%q).Term = %q, want %q", tt.input, result.Term, tt.term)
			}
		})
	}
}

func TestApproveProfile(t *testing.T) {
	f := NewFilter()

	tests := []struct {
		name     string
		input    string
		approved bool
	}{
		{"empty name allowed", "", true},
		{"plain name", "alice", true},
		{"reserved term", "admin", false},
		{"reserved substring", "sysadmin42", false},
		{"impersonation", "Moderator Mike", false},
		{"url in name", "visit www.spam.example today", false},
		{"flooded name", "aaaaaaaa", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.ApproveProfile(tt.input); got != tt.approved {
				t.Errorf("ApproveProfile(%q) = %v, want %v", tt.input, got, tt.approved)
			}
		})
	}
}
