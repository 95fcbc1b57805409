package fetch

import (
	"fmt"
	"regexp"
)

// Rule spoofs Referer and Origin for upstream URLs matching Pattern.
type Rule struct {
	Pattern *regexp.Regexp
	Referer string
	// Force sends the referer as Origin when the derived origin is opaque.
	Force bool
}

// NewRule compiles pattern into a Rule.
func NewRule(pattern, referer string, force bool) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compiling rule pattern %q: %w", pattern, err)
	}
	if referer == "" {
		return Rule{}, fmt.Errorf("rule %q: empty referer", pattern)
	}
	return Rule{Pattern: re, Referer: referer, Force: force}, nil
}

// Outcome is the result of matching a URL against a RuleTable. It is
// either Matched or Unmatched.
type Outcome interface {
	outcome()
}

// Matched carries the first rule that matched.
type Matched struct {
	Rule Rule
}

// Unmatched means no rule matched.
type Unmatched struct{}

func (Matched) outcome()   {}
func (Unmatched) outcome() {}

// RuleTable is an ordered list of rules. The first matching rule wins.
type RuleTable []Rule

// Match evaluates href against the table in order.
func (t RuleTable) Match(href string) Outcome {
	for _, r := range t {
		if r.Pattern.MatchString(href) {
			return Matched{Rule: r}
		}
	}
	return Unmatched{}
}

// Providers that reject hotlinked images unless Referer/Origin point at
// their own site.
var defaultRules = RuleTable{
	{Pattern: regexp.MustCompile(`^https://\w+\.sinaimg\.cn`), Referer: "https://weibo.com"},
	{Pattern: regexp.MustCompile(`^https://i\.pximg\.net`), Referer: "https://www.pixiv.net"},
	{Pattern: regexp.MustCompile(`^https://cdnfile\.sspai\.com`), Referer: "https://sspai.com"},
	{Pattern: regexp.MustCompile(`^https://(?:\w|-)+\.cdninstagram\.com`), Referer: "https://www.instagram.com"},
	{Pattern: regexp.MustCompile(`^https://sp1\.piokok\.com`), Referer: "https://www.piokok.com", Force: true},
	{Pattern: regexp.MustCompile(`^https?://[\w-]+\.xhscdn\.com`), Referer: "https://www.xiaohongshu.com"},
}

// DefaultRules returns a copy of the built-in provider table.
func DefaultRules() RuleTable {
	out := make(RuleTable, len(defaultRules))
	copy(out, defaultRules)
	return out
}
