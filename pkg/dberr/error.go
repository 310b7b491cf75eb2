// Package dberr defines the structured error type returned by every public
// operation of the engine. Errors carry a short Kind, a human-readable
// message, and, where applicable, the offending identifier and ref.
package dberr

import (
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an error by the appropriate handling strategy. The set of
// kinds is closed and matches the engine's error taxonomy: callers switch on
// Kind, never on the message text.
type Kind string

const (
	// InvalidDatabase covers a bad header, a truncated file, or an
	// unsupported file-format version.
	InvalidDatabase Kind = "InvalidDatabase"

	// FileAccess covers I/O errors and permission failures talking to the
	// backing file.
	FileAccess Kind = "FileAccess"

	// StaleAccessor is returned when an accessor (Table, Results, Query, ...)
	// is used after the transaction that produced it has ended.
	StaleAccessor Kind = "StaleAccessor"

	// WrongTransactionState is returned for a write attempted on a read
	// transaction, or any other lifecycle misuse.
	WrongTransactionState Kind = "WrongTransactionState"

	// CrossTableLinkTarget is returned when removing a table that is still
	// the target of a link from another table.
	CrossTableLinkTarget Kind = "CrossTableLinkTarget"

	// TableNameInUse is returned when creating a table whose name already
	// exists in the group.
	TableNameInUse Kind = "TableNameInUse"

	// NoSuchTable is returned when a TableKey or name does not resolve.
	NoSuchTable Kind = "NoSuchTable"

	// DescriptorMismatch is returned when a column's resolved type,
	// nullability, or collection kind disagrees with what the caller
	// expected (e.g. during client reset schema transfer).
	DescriptorMismatch Kind = "DescriptorMismatch"

	// InvalidQuery covers a semantically invalid condition tree (e.g.
	// comparing incompatible types).
	InvalidQuery Kind = "InvalidQuery"

	// SyntaxError covers a parse error from an external query-text parser.
	SyntaxError Kind = "SyntaxError"

	// OutOfBounds covers an out-of-range index into an Array, B+tree, or
	// Results.
	OutOfBounds Kind = "OutOfBounds"

	// LogicError covers API misuse that the type system could not prevent.
	LogicError Kind = "LogicError"

	// LockTimeout is returned when write-lock acquisition exceeds its
	// deadline.
	LockTimeout Kind = "LockTimeout"

	// ClientResetFailed covers any failure of the client-reset algorithm,
	// including the reset-cycle guard.
	ClientResetFailed Kind = "ClientResetFailed"

	// OutOfDiskSpace is returned by the allocator when file extension fails.
	OutOfDiskSpace Kind = "OutOfDiskSpace"

	// InvalidRef is returned by translate() when a ref falls outside the
	// currently mapped file size.
	InvalidRef Kind = "InvalidRef"
)

// Error is the structured error type returned by the engine. It implements
// the standard error interface and supports errors.Is/As via Unwrap.
type Error struct {
	// Kind is the closed classification above.
	Kind Kind

	// Message is a human-readable description of what went wrong.
	Message string

	// Ident is the offending identifier, when applicable: a table name, a
	// column name, or a key rendered as a string.
	Ident string

	// Ref is the offending ref, set only for corruption-flavored errors
	// (InvalidDatabase, InvalidRef, FileAccess against a specific node).
	Ref uint64

	// Operation names the engine operation that failed, e.g. "Commit",
	// "RadixTree.Insert", "ClientReset.TransferRows".
	Operation string

	// Cause is the underlying error, if any.
	Cause error

	Stack []uintptr
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Stack: captureStack()}
}

// Withf creates an Error with a formatted message.
func Withf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Stack: captureStack()}
}

// Wrap attaches kind/operation context to err. If err is already an *Error,
// it is enriched in place (without discarding the original Kind) and
// returned; otherwise a new *Error is constructed around it.
func Wrap(err error, kind Kind, operation string) *Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*Error); ok {
		if e.Operation == "" {
			e.Operation = operation
		}
		return e
	}

	return &Error{
		Kind:      kind,
		Message:   err.Error(),
		Operation: operation,
		Cause:     err,
		Stack:     captureStack(),
	}
}

// WithIdent returns a copy of e carrying the given offending identifier.
func (e *Error) WithIdent(ident string) *Error {
	cp := *e
	cp.Ident = ident
	return &cp
}

// WithRef returns a copy of e carrying the given offending ref.
func (e *Error) WithRef(ref uint64) *Error {
	cp := *e
	cp.Ref = ref
	return &cp
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[0:n]
}

// Error implements the standard Go error interface. Format:
// [Kind] Message (ident: Ident, ref: Ref, operation: Operation) caused by: Cause
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s", e.Kind, e.Message))

	var ctx []string
	if e.Ident != "" {
		ctx = append(ctx, fmt.Sprintf("ident: %s", e.Ident))
	}
	if e.Ref != 0 {
		ctx = append(ctx, fmt.Sprintf("ref: %d", e.Ref))
	}
	if e.Operation != "" {
		ctx = append(ctx, fmt.Sprintf("operation: %s", e.Operation))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf(" caused by: %v", e.Cause))
	}

	return b.String()
}

// Unwrap returns the underlying cause, enabling errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is a *Error of the given kind. It lets callers
// write errors.Is(err, dberr.New(dberr.NoSuchTable, "")) style checks, but
// the idiomatic path is Kind-matching via As.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// FormatStack returns a human-readable stack trace for debugging purposes.
func (e *Error) FormatStack() string {
	if len(e.Stack) == 0 {
		return ""
	}

	var b strings.Builder
	frames := runtime.CallersFrames(e.Stack)

	b.WriteString("Stack trace:\n")
	for {
		f, more := frames.Next()
		b.WriteString(fmt.Sprintf("  %s\n    %s:%d\n", f.Function, f.File, f.Line))
		if !more {
			break
		}
	}

	return b.String()
}
