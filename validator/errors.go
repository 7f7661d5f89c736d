// Copyright (c) 2026 The Sorcha developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package validator

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode names one deterministic rejection cause. The set is closed:
// these are the only codes that cross the RPC boundary, every internal
// failure is redacted to VAL_UNAVAILABLE or VAL_BUSY.
type ErrorCode string

const (
	CodeStruct      ErrorCode = "VAL_STRUCT_001"
	CodeHash        ErrorCode = "VAL_HASH_001"
	CodeSignature   ErrorCode = "VAL_SIG_002"
	CodeBlueprint   ErrorCode = "VAL_SCHEMA_001"
	CodeSchema      ErrorCode = "VAL_SCHEMA_004"
	CodeAction      ErrorCode = "VAL_BP_001"
	CodeSender      ErrorCode = "VAL_BP_002"
	CodePrevTx      ErrorCode = "VAL_BP_003"
	CodeBusy        ErrorCode = "VAL_BUSY"
	CodeUnavailable ErrorCode = "VAL_UNAVAILABLE"
)

// Error is a deterministic validation rejection. It is reported to the
// caller once and never retried internally.
type Error struct {
	Code    ErrorCode
	Message string
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func reject(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsValidation extracts a validation error from an error chain.
func AsValidation(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

// Redact converts any error into a boundary-safe validation error.
// Validation errors pass through, everything else collapses to
// VAL_UNAVAILABLE.
func Redact(err error) *Error {
	if verr, ok := AsValidation(err); ok {
		return verr
	}
	return &Error{Code: CodeUnavailable, Message: "service unavailable"}
}
