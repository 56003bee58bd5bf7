// Package ledgererr defines the stable error taxonomy shared by every layer
// of the ledger: canonical encoding, the cell/chain model, the WAL, and the
// precedent and shadow engines. Errors built with New or Wrap carry a Code
// so callers can switch on it instead of string-matching; internal/canon
// returns its own *canon.Error and *canon.FloatError types instead.
package ledgererr

import "fmt"

// Code is a stable error kind. Values never change meaning once shipped;
// new kinds are added, existing ones are never repurposed.
type Code string

const (
	CodeSchemaInvalid      Code = "SchemaInvalid"
	CodeInputInvalid       Code = "InputInvalid"
	CodeUnauthorized       Code = "Unauthorized"
	CodeIntegrityFail      Code = "IntegrityFail"
	CodeChainBreak         Code = "ChainBreak"
	CodeGenesisViolation   Code = "GenesisViolation"
	CodeGraphIdMismatch    Code = "GraphIdMismatch"
	CodeHashSchemeMismatch Code = "HashSchemeMismatch"
	CodeTemporalViolation  Code = "TemporalViolation"
	CodeSignatureInvalid   Code = "SignatureInvalid"
	CodeFloatNotAllowed    Code = "FloatNotAllowed"
	CodeCanonicalEncoding  Code = "CanonicalEncoding"
	CodeWALCorruption      Code = "WALCorruption"
	CodeWALHeader          Code = "WALHeader"
	CodeWALChain           Code = "WALChain"
	CodeWALSequence        Code = "WALSequence"
	CodePackValidation     Code = "PackValidation"
	CodeJudgmentValidation Code = "JudgmentValidation"
	CodeSchemaNotFound     Code = "SchemaNotFound"
	CodeInternal           Code = "Internal"
)

// ExitCode maps a top-level Code to the CLI's stable exit code (§7).
var ExitCode = map[Code]int{
	CodeInputInvalid:       10,
	CodeSchemaInvalid:      10,
	CodePackValidation:     11,
	CodeJudgmentValidation: 11,
	CodeIntegrityFail:      12,
	CodeChainBreak:         12,
	CodeGenesisViolation:   12,
	CodeGraphIdMismatch:    12,
	CodeHashSchemeMismatch: 12,
	CodeSignatureInvalid:   12,
	CodeWALCorruption:      12,
	CodeWALHeader:          12,
	CodeWALChain:           12,
	CodeWALSequence:        12,
	CodeInternal:           20,
}

// Error is the structured error every exported ledger operation returns.
// It carries a stable Code, a human Message, an optional Details map for
// machine-readable context, and wraps an underlying cause when present.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no details and no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an *Error that wraps cause, preserving it for errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	n := *e
	n.Details = details
	return &n
}

// JSON is the wire shape from §6: {code, message, details}.
type JSON struct {
	Code    Code           `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToJSON renders e in the user-visible failure shape.
func (e *Error) ToJSON() JSON {
	return JSON{Code: e.Code, Message: e.Message, Details: e.Details}
}

// Exit returns the CLI exit code for e's Code, defaulting to 20 (internal)
// for any code not in the table — every unmapped failure is treated as
// internal rather than silently exiting 0.
func Exit(code Code) int {
	if c, ok := ExitCode[code]; ok {
		return c
	}
	return 20
}
