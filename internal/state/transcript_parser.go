// Package state classifies terminal output produced by agent CLIs.
package state

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind names a condition detected in agent output.
type Kind string

const (
	KindError            Kind = "error"
	KindRateLimited      Kind = "rate_limited"
	KindAwaitingApproval Kind = "awaiting_approval"
)

// Signal is a condition detected in a transcript.
type Signal struct {
	Kind   Kind
	Reason string

	// RetryAfter is set for rate limits that announce a wait.
	RetryAfter time.Duration
}

// Blocking reports whether the agent cannot make progress without help.
func (s *Signal) Blocking() bool {
	return s != nil && (s.Kind == KindRateLimited || s.Kind == KindAwaitingApproval)
}

func (s *Signal) String() string {
	if s == nil {
		return ""
	}
	if s.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", s.Reason, s.RetryAfter)
	}
	return s.Reason
}

// ParseTranscript inspects transcript text and returns a signal if a pattern matches.
func ParseTranscript(text string) *Signal {
	lower := strings.ToLower(text)

	if containsAny(lower, "rate limit", "too many requests", "quota exceeded", "429") {
		signal := &Signal{
			Kind:   KindRateLimited,
			Reason: "rate limit indicator detected in transcript",
		}
		if retryAfter, ok := extractRetryAfter(lower); ok {
			signal.RetryAfter = retryAfter
		}
		return signal
	}

	if containsAny(lower, "error", "exception", "panic", "failed") {
		return &Signal{
			Kind:   KindError,
			Reason: "error indicator detected in transcript",
		}
	}

	if containsAny(lower, "proceed?", "[y/n]", "(y/n)", "do you want to allow", "approve this") {
		return &Signal{
			Kind:   KindAwaitingApproval,
			Reason: "approval prompt detected in transcript",
		}
	}

	return nil
}

var retryAfterPattern = regexp.MustCompile(`(?i)(retry after|try again in)\s+(\d+)\s*([a-z]+)?`)

func extractRetryAfter(text string) (time.Duration, bool) {
	match := retryAfterPattern.FindStringSubmatch(text)
	if len(match) < 3 {
		return 0, false
	}

	value, err := strconv.Atoi(match[2])
	if err != nil {
		return 0, false
	}

	unit := normalizeDurationUnit(match[3])
	if unit == "" {
		unit = "s"
	}

	duration, err := time.ParseDuration(fmt.Sprintf("%d%s", value, unit))
	if err != nil {
		return 0, false
	}
	return duration, true
}

func normalizeDurationUnit(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "s", "sec", "secs", "second", "seconds":
		return "s"
	case "m", "min", "mins", "minute", "minutes":
		return "m"
	case "h", "hr", "hrs", "hour", "hours":
		return "h"
	default:
		return ""
	}
}

func containsAny(text string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07|\x1b[()][A-Za-z0-9]`)

// StripANSI removes terminal escape sequences and carriage returns.
func StripANSI(text string) string {
	text = ansiPattern.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, "\r", "")
}
