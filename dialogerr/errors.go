// Package dialogerr defines the typed error taxonomy that crosses every
// session-layer and table-layer boundary in dialog. Rather than one
// exception class per failure mode, a single tagged struct carries a Kind
// (the taxonomy family) and a Code (the specific failure within that
// family), so callers can either switch on Kind for coarse handling or
// compare Code for exact behavior, e.g. the RPC layer tests rely on.
package dialogerr

import "fmt"

// Kind is the taxonomy family an Error belongs to.
type Kind int

const (
	ManagementError Kind = iota
	ParseError
	SchemaError
	InvalidOperation
	OutOfBounds
)

func (k Kind) String() string {
	switch k {
	case ManagementError:
		return "ManagementError"
	case ParseError:
		return "ParseError"
	case SchemaError:
		return "SchemaError"
	case InvalidOperation:
		return "InvalidOperation"
	case OutOfBounds:
		return "OutOfBounds"
	default:
		return "UnknownError"
	}
}

// Error is the single error type used across dialog. Code is stable and
// machine comparable (e.g. "NoSuchTable"); Message is the human readable
// text that crosses the RPC boundary verbatim.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newErr(k Kind, code, msg string) *Error {
	return &Error{Kind: k, Code: code, Message: msg}
}

// Is reports whether err is a *Error with the given code, so callers can
// write `dialogerr.Is(err, "NoSuchTable")` instead of type-asserting.
func Is(err error, code string) bool {
	de, ok := err.(*Error)
	return ok && de.Code == code
}

// --- ManagementError family ---

func DuplicateTable(name string) *Error {
	return newErr(ManagementError, "DuplicateTable", fmt.Sprintf("Table %s already exists", name))
}

// NoSuchTable's message wording is an external contract: tests assert it
// verbatim as "No such table <name>".
func NoSuchTable(name string) *Error {
	return newErr(ManagementError, "NoSuchTable", "No such table "+name)
}

func DuplicateColumn(name string) *Error {
	return newErr(ManagementError, "DuplicateColumn", fmt.Sprintf("Duplicate column %s", name))
}

func NoSuchFilter(name string) *Error {
	return newErr(ManagementError, "NoSuchFilter", fmt.Sprintf("No such filter %s", name))
}

func NoSuchTrigger(name string) *Error {
	return newErr(ManagementError, "NoSuchTrigger", fmt.Sprintf("No such trigger %s", name))
}

func NoSuchColumn(name string) *Error {
	return newErr(ManagementError, "NoSuchColumn", fmt.Sprintf("No such column %s", name))
}

func RegistrationFailed(reason string) *Error {
	return newErr(ManagementError, "RegistrationFailed", "Could not register handler: "+reason)
}

// --- ParseError family ---

func Parse(msg string) *Error {
	return newErr(ParseError, "ParseError", msg)
}

// --- SchemaError family ---

func BadSize(want, got int) *Error {
	return newErr(SchemaError, "BadSize", fmt.Sprintf("record size mismatch: expected %d bytes, got %d", want, got))
}

func BadType(column string) *Error {
	return newErr(SchemaError, "BadType", fmt.Sprintf("value type mismatch for column %s", column))
}

// --- InvalidOperation family ---

func NoSuchIterator() *Error {
	return newErr(InvalidOperation, "NoSuchIterator", "No such iterator")
}

func HandlerMismatch() *Error {
	return newErr(InvalidOperation, "HandlerMismatch", "handler_id mismatch")
}

func DuplicateIteratorId() *Error {
	return newErr(InvalidOperation, "DuplicateIteratorId", "Duplicate iterator id assigned")
}

// --- OutOfBounds family ---

func OffsetOutOfBounds(offset int64) *Error {
	return newErr(OutOfBounds, "OutOfBounds", fmt.Sprintf("offset %d is out of bounds", offset))
}
