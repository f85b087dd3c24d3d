// Package sacderr defines the stable numeric error taxonomy that the core
// exposes to external collaborators (FUSE/WinFSP bindings, CLI drivers).
// Packages attach a Code with Wrap where an error's class is known; CodeOf
// reports IO for an error that carries no Code.
package sacderr

import "fmt"

// Code is a stable numeric error code, mirroring spec.md §6.8.
type Code int

const (
	OK                Code = 0
	InvalidParameter  Code = -1
	NotFound          Code = -2
	IO                Code = -3
	Memory            Code = -4
	NotOpen           Code = -5
	Seek              Code = -6
	Read              Code = -7
	Format            Code = -8
	DstDecode         Code = -9
	EOF               Code = -10
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case InvalidParameter:
		return "InvalidParameter"
	case NotFound:
		return "NotFound"
	case IO:
		return "IO"
	case Memory:
		return "Memory"
	case NotOpen:
		return "NotOpen"
	case Seek:
		return "Seek"
	case Read:
		return "Read"
	case Format:
		return "Format"
	case DstDecode:
		return "DstDecode"
	case EOF:
		return "EOF"
	default:
		return fmt.Sprintf("Code(%d)", int(c))
	}
}

// Error wraps an inner cause with a stable Code.
type Error struct {
	Code  Code
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a Code to cause. Wrap(OK, nil) returns nil.
func Wrap(code Code, cause error) error {
	if code == OK && cause == nil {
		return nil
	}
	return &Error{Code: code, Cause: cause}
}

// CodeOf extracts the Code from err, or OK if err is nil, or IO if err
// carries no Code (an unclassified error reaching an external boundary is
// treated conservatively as an I/O failure rather than silently coded OK).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	var se *Error
	if ok := asError(err, &se); ok {
		return se.Code
	}
	return IO
}

func asError(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok { //nolint:errorlint // intentional shallow unwrap loop below
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
