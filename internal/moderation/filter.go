// Package moderation provides content screening for the relay. It implements
// the profile-registration gate: a submitted profile is checked and either
// approved or rejected before the registry will accept it.
package moderation

import "strings"

// FilterResult describes the outcome of a content check.
type FilterResult struct {
	Blocked bool   // whether the content should be rejected
	Reason  string // category of the match ("blocked_term", "spam_pattern")
	Term    string // the term or pattern that matched
}

// Filter screens text against a blocked-term list and the spam pattern
// checks. The zero value is not usable; construct with NewFilter.
type Filter struct {
	blockedTerms []string
}

// defaultBlockedTerms is the built-in deny list applied to profile names.
// Matching is case-insensitive substring.
var defaultBlockedTerms = []string{
	"admin",
	"moderator",
	"system",
}

// NewFilter creates a Filter with the default blocked-term list.
func NewFilter() *Filter {
	return &Filter{blockedTerms: defaultBlockedTerms}
}

// NewFilterWithTerms creates a Filter with a custom blocked-term list.
func NewFilterWithTerms(terms []string) *Filter {
	return &Filter{blockedTerms: terms}
}

// Check screens text and returns a blocking result on the first match:
// blocked terms first, then the spam patterns (URLs, phone numbers,
// character and word flooding).
func (f *Filter) Check(text string) FilterResult {
	lower := strings.ToLower(text)
	for _, term := range f.blockedTerms {
		if strings.Contains(lower, term) {
			return FilterResult{Blocked: true, Reason: "blocked_term", Term: term}
		}
	}
	return f.checkSpamPatterns(text)
}

// ApproveProfile is the registration gate: it reports whether a profile with
// the given display name may register. An empty name is allowed — names are
// optional and the presence layer tolerates their absence.
func (f *Filter) ApproveProfile(name string) bool {
	if name == "" {
		return true
	}
	return !f.Check(name).Blocked
}
