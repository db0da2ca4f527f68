// Package errors provides standardized error handling for the content gate.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Terminal, user-visible, no retry offered.
	ErrCodeContentNotFound ErrorCode = "CONTENT_NOT_FOUND"
	ErrCodeContentInactive ErrorCode = "CONTENT_INACTIVE"

	// Operator remediation required.
	ErrCodeChannelNotFound    ErrorCode = "CHANNEL_NOT_FOUND"
	ErrCodeInsufficientRights ErrorCode = "INSUFFICIENT_RIGHTS"
	ErrCodeNotAdministrator   ErrorCode = "NOT_ADMINISTRATOR"
	ErrCodeNoPostingRights    ErrorCode = "NO_POSTING_RIGHTS"

	// Expected, non-error outcome driving the remediation prompt.
	ErrCodeNotSubscribed ErrorCode = "NOT_SUBSCRIBED"

	// Retryable by re-invoking resume.
	ErrCodeOracleTransient ErrorCode = "ORACLE_TRANSIENT_FAILURE"

	// Credit ledger / publisher flow.
	ErrCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrCodeNotPublisher        ErrorCode = "NOT_PUBLISHER"
	ErrCodeInvalidContent      ErrorCode = "INVALID_CONTENT"

	// Storage.
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeUserNotFound             ErrorCode = "USER_NOT_FOUND"

	// Transport.
	ErrCodeTelegramAPIError ErrorCode = "TELEGRAM_API_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is allows errors.Is matching against another StandardError by code.
func (e *StandardError) Is(target error) bool {
	var se *StandardError
	if errors.As(target, &se) {
		return e.Code == se.Code
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err is a StandardError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// DetailsOf extracts the human-readable details from a StandardError,
// falling back to the plain error text.
func DetailsOf(err error) string {
	var se *StandardError
	if errors.As(err, &se) && se.Details != "" {
		return se.Details
	}
	return err.Error()
}

// ==========================
// 2. Error Constructors
// ==========================

// NewContentNotFoundError creates a terminal content lookup error.
func NewContentNotFoundError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeContentNotFound,
		Message:   "Post not found or deleted",
		Details:   fmt.Sprintf("token: %s", token),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewContentInactiveError creates a terminal error for a deactivated post.
func NewContentInactiveError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeContentInactive,
		Message:   "Post is temporarily unavailable",
		Details:   fmt.Sprintf("token: %s", token),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewChannelNotFoundError creates an operator-remediation channel error.
func NewChannelNotFoundError(channel string, err error) *StandardError {
	details := ""
	if err != nil {
		details = truncate(err.Error(), 100)
	}
	return &StandardError{
		Code:      ErrCodeChannelNotFound,
		Message:   fmt.Sprintf("Channel %s not found or unavailable", channel),
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientRightsError signals that the bot cannot query membership in a
// channel. Never conflated with "not subscribed".
func NewInsufficientRightsError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientRights,
		Message:   fmt.Sprintf("Bot lacks rights to verify subscriptions in %s", channel),
		Retryable: false,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotAdministratorError rejects a channel where the bot is a plain member.
func NewNotAdministratorError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotAdministrator,
		Message:   fmt.Sprintf("Bot is not an administrator in %s", channel),
		Retryable: false,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewNoPostingRightsError rejects a channel where the bot is an administrator
// without the posting capability.
func NewNoPostingRightsError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoPostingRights,
		Message:   fmt.Sprintf("Bot has no right to post messages in %s", channel),
		Retryable: false,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotSubscribedError is the expected denial outcome for a channel.
func NewNotSubscribedError(channel string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotSubscribed,
		Message:   fmt.Sprintf("You are not subscribed to %s", channel),
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewOracleTransientError wraps an unclassified membership-query failure.
func NewOracleTransientError(channel string, err error) *StandardError {
	details := ""
	if err != nil {
		details = truncate(err.Error(), 100)
	}
	return &StandardError{
		Code:      ErrCodeOracleTransient,
		Message:   fmt.Sprintf("Could not verify subscription to %s", channel),
		Details:   details,
		Retryable: true,
		Metadata:  map[string]interface{}{"channel": channel},
		Timestamp: time.Now().UTC(),
	}
}

// NewInsufficientCreditsError is the checked ledger precondition failure.
func NewInsufficientCreditsError(need, have int) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientCredits,
		Message:   "Not enough credits",
		Details:   fmt.Sprintf("need: %d, have: %d", need, have),
		Retryable: false,
		Metadata:  map[string]interface{}{"need": need, "have": have},
		Timestamp: time.Now().UTC(),
	}
}

// NewNotPublisherError rejects publisher-only operations.
func NewNotPublisherError(userID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotPublisher,
		Message:   "Publisher role required",
		Details:   fmt.Sprintf("userId: %d", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidContentError reports a payload descriptor that failed validation.
func NewInvalidContentError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidContent,
		Message:   "Content payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewUserNotFoundError reports an unknown user id.
func NewUserNotFoundError(userID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeUserNotFound,
		Message:   "User is not registered",
		Details:   fmt.Sprintf("userId: %d", userID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTelegramAPIError wraps a transport-level Bot API failure.
func NewTelegramAPIError(method string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTelegramAPIError,
		Message:   fmt.Sprintf("Telegram API call '%s' failed", method),
		Details:   truncate(err.Error(), 200),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsTerminal reports whether the code ends the gate run with no retry offered.
func IsTerminal(code ErrorCode) bool {
	return code == ErrCodeContentNotFound || code == ErrCodeContentInactive
}

// IsOperatorFault reports whether the code requires publisher/admin
// remediation rather than user action.
func IsOperatorFault(code ErrorCode) bool {
	switch code {
	case ErrCodeChannelNotFound, ErrCodeInsufficientRights,
		ErrCodeNotAdministrator, ErrCodeNoPostingRights:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
