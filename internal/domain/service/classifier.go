package service

import (
	"regexp"
	"strconv"
	"strings"
)

// ErrorKind is the error taxonomy surfaced by the Response Classifier
// and, ultimately, on a terminal Result (§7).
type ErrorKind string

const (
	ErrorTransport            ErrorKind = "transport"
	ErrorRateLimit            ErrorKind = "rate_limit"
	ErrorServer               ErrorKind = "server_error"
	ErrorMalformedToolJSON    ErrorKind = "malformed_tool_json"
	ErrorTokenLimitExceeded   ErrorKind = "token_limit_exceeded"
	ErrorMessageStructure     ErrorKind = "message_structure_error"
	ErrorAuthRecovered        ErrorKind = "auth_recovered"
	ErrorToolFailure          ErrorKind = "tool_failure"
	ErrorIterationLimit       ErrorKind = "iteration_limit"
	ErrorSessionBudget        ErrorKind = "session_error_budget"
	ErrorPrematureStopBudget  ErrorKind = "premature_stop_budget"
	ErrorMissingAPIKey        ErrorKind = "missing_api_key"
	ErrorInvalidConfig        ErrorKind = "invalid_config"
)

// ClassifiedError is the structured outcome of classifying an HTTP
// response (§4.7).
type ClassifiedError struct {
	Retryable         bool
	ErrorKind         ErrorKind
	RetryAfterSeconds int
	FailedTool        string
}

const defaultRateLimitRetrySeconds = 60

var (
	retryAfterPhraseRe = regexp.MustCompile(`(?i)retry in (\d+)\s*s`)
	tokenLimitPhraseRe = regexp.MustCompile(`(?i)context length|too many tokens|exceeds.*tokens|input too long`)
	malformedToolJSONRe = regexp.MustCompile(`(?i)invalid.*tool.*(argument|json)|tool_calls.*(invalid|malformed)`)
	authExpiredRe       = regexp.MustCompile(`(?i)token expired|token has expired|invalid_token`)
)

// Classify implements the taxonomy in §4.7. headerRetryAfter is the
// parsed Retry-After header value in seconds, or -1 if absent.
func Classify(statusCode int, body string, headerRetryAfterSeconds int) ClassifiedError {
	switch {
	case statusCode == 429:
		return ClassifiedError{
			Retryable:         true,
			ErrorKind:         ErrorRateLimit,
			RetryAfterSeconds: retryAfterSeconds(body, headerRetryAfterSeconds),
		}
	case statusCode == 502 || statusCode == 503:
		return ClassifiedError{Retryable: true, ErrorKind: ErrorServer}
	case statusCode == 599:
		return ClassifiedError{Retryable: true, ErrorKind: ErrorServer}
	case statusCode == 400 && malformedToolJSONRe.MatchString(body):
		return ClassifiedError{Retryable: true, ErrorKind: ErrorMalformedToolJSON}
	case statusCode == 400 && tokenLimitPhraseRe.MatchString(body):
		return ClassifiedError{Retryable: true, ErrorKind: ErrorTokenLimitExceeded}
	case (statusCode == 401 || statusCode == 403) && authExpiredRe.MatchString(body):
		return ClassifiedError{Retryable: true, ErrorKind: ErrorAuthRecovered}
	case statusCode >= 400 && statusCode < 500:
		return ClassifiedError{Retryable: true, ErrorKind: ErrorMessageStructure}
	default:
		return ClassifiedError{Retryable: false, ErrorKind: ErrorServer}
	}
}

func retryAfterSeconds(body string, headerValue int) int {
	if headerValue > 0 {
		return headerValue
	}
	if m := retryAfterPhraseRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return defaultRateLimitRetrySeconds
}

// RetryBudget returns the bounded retry count for an error kind (§7):
// transport/server_error get 20 retries, everything else gets 3.
func RetryBudget(kind ErrorKind) int {
	if kind == ErrorTransport || kind == ErrorServer {
		return 20
	}
	return 3
}

var apiErrorStatusRe = regexp.MustCompile(`(?i)API error (\d+): (.*)`)

// ClassifyErr extracts the status code and body a provider embedded in
// err's message (the "API error %d: %s" / "Anthropic API error %d: %s"
// shape both clients return) and classifies it via Classify. Errors with
// no embedded status code are network-level failures that never reached
// a response — treated as transport errors, which share the server_error
// retry budget (§4.7, §7).
func ClassifyErr(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{}
	}
	msg := err.Error()
	if m := apiErrorStatusRe.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return Classify(code, m[2], -1)
		}
	}
	if !IsRetryable(msg) {
		return ClassifiedError{Retryable: false, ErrorKind: ErrorMessageStructure}
	}
	return ClassifiedError{Retryable: true, ErrorKind: ErrorTransport}
}

// IsRetryable reports whether err's message matches any of the
// transport-level retryable patterns recognized by the streaming
// client (timeouts, resets, transient 5xx) independent of the
// structured Classify path above.
func IsRetryable(errMsg string) bool {
	lower := strings.ToLower(errMsg)
	for _, p := range []string{"timeout", "deadline exceeded", "connection reset", "connection refused", "eof", "502", "503", "504"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
