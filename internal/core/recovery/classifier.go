// Package recovery classifies step failures and plans how a session recovers from them.
// This is part of the Functional Core - no I/O, only pure functions.
package recovery

import (
	"regexp"
	"strconv"
	"strings"
)

// ErrorType is the classified kind of a failure.
type ErrorType string

const (
	TypeSearchProvider ErrorType = "SEARCH_PROVIDER_ERROR"
	TypeTimeout        ErrorType = "TIMEOUT"
	TypeRateLimit      ErrorType = "RATE_LIMIT"
	TypeTokenLimit     ErrorType = "TOKEN_LIMIT"
	TypeParse          ErrorType = "PARSE_ERROR"
	TypeNetwork        ErrorType = "NETWORK_ERROR"
	TypeDB             ErrorType = "DB_ERROR"
	TypeUnknown        ErrorType = "UNKNOWN"
)

// DefaultRateLimitWaitSeconds applies when a rate-limit message names no wait.
const DefaultRateLimitWaitSeconds = 300

// ErrorInfo is the typed diagnosis of a raw failure.
type ErrorInfo struct {
	Type              ErrorType `json:"type"`
	UserMessage       string    `json:"user_message"`
	TechnicalDetails  string    `json:"technical_details"`
	StatusCode        int       `json:"status_code"`
	Retryable         bool      `json:"retryable"`
	RetryAfterSeconds int       `json:"retry_after_seconds,omitempty"`
	SuggestedAction   string    `json:"suggested_action,omitempty"`
}

// classRule binds a type to its lower-case substring patterns.
type classRule struct {
	typ      ErrorType
	patterns []string
}

// Rules are checked in order; the first match wins.
// Priority: search provider > timeout > rate limit > token limit > parse > network > db
var classRules = []classRule{
	{TypeSearchProvider, []string{"perplexity", "search provider", "search api"}},
	{TypeTimeout, []string{"timeout", "timed out", "deadline exceeded", "etimedout"}},
	{TypeRateLimit, []string{"rate limit", "rate_limit", "429", "too many requests"}},
	{TypeTokenLimit, []string{"token limit", "context length", "maximum context", "too many tokens", "max_tokens"}},
	{TypeParse, []string{"parse", "json", "unexpected token", "invalid character", "unmarshal"}},
	{TypeNetwork, []string{"network", "econnrefused", "econnreset", "connection refused", "connection reset", "fetch failed", "no such host"}},
	{TypeDB, []string{"database", "sql", "constraint"}},
}

var typeStatusCodes = map[ErrorType]int{
	TypeSearchProvider: 502,
	TypeTimeout:        504,
	TypeRateLimit:      429,
	TypeTokenLimit:     413,
	TypeParse:          422,
	TypeNetwork:        503,
	TypeDB:             503,
	TypeUnknown:        500,
}

// typeWaitSeconds is the default wait before retrying each type. Zero means immediately.
var typeWaitSeconds = map[ErrorType]int{
	TypeSearchProvider: 30,
	TypeTimeout:        10,
	TypeNetwork:        5,
	TypeDB:             5,
	TypeUnknown:        30,
}

var (
	secondsPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:seconds?|secs?|s)\b`)
	minutesPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:minutes?|mins?|m)\b`)
)

// DetectType returns the first type whose pattern occurs in msg.
func DetectType(msg string) ErrorType {
	lower := strings.ToLower(msg)
	for _, rule := range classRules {
		for _, p := range rule.patterns {
			if strings.Contains(lower, p) {
				return rule.typ
			}
		}
	}
	return TypeUnknown
}

// ParseRetryAfter extracts an explicit wait from a rate-limit message.
// Returns DefaultRateLimitWaitSeconds when none is present.
func ParseRetryAfter(msg string) int {
	if m := secondsPattern.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := minutesPattern.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n * 60
		}
	}
	return DefaultRateLimitWaitSeconds
}

// Classify diagnoses a raw error message, localizing the user message.
// Every type is retryable; escalation happens only through retry ceilings.
func Classify(msg, locale string) ErrorInfo {
	typ := DetectType(msg)
	info := ErrorInfo{
		Type:             typ,
		UserMessage:      UserMessage(typ, locale),
		TechnicalDetails: msg,
		StatusCode:       typeStatusCodes[typ],
		Retryable:        true,
		SuggestedAction:  SuggestedAction(typ, locale),
	}
	if typ == TypeRateLimit {
		info.RetryAfterSeconds = ParseRetryAfter(msg)
	} else {
		info.RetryAfterSeconds = typeWaitSeconds[typ]
	}
	return info
}

// ClassifyError diagnoses err using the default locale.
func ClassifyError(err error) ErrorInfo {
	if err == nil {
		return Classify("", DefaultLocale)
	}
	return Classify(err.Error(), DefaultLocale)
}
