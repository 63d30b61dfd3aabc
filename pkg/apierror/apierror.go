// Package apierror defines the error taxonomy shared across the adapter
// manager (spec §4.7). Every error kind carries the offending identifier
// where one applies and implements the standard error interface so
// callers can use errors.As to dispatch on Kind.
package apierror

import "fmt"

// Kind enumerates the error taxonomy. Kind values are stable and may be
// compared directly; they exist so callers can branch on error category
// without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindDuplicateAdapter
	KindNoSuchAdapter
	KindDuplicateService
	KindNoSuchService
	KindInvalidInitialService
	KindDuplicateChannel
	KindNoSuchChannel
	KindConflictingAdapter
	KindNoSuchMethod
	KindTypeError
	KindInvalidValue
	KindParseError
	KindSerializeError
	KindGenericInternal
)

func (k Kind) String() string {
	switch k {
	case KindDuplicateAdapter:
		return "DuplicateAdapter"
	case KindNoSuchAdapter:
		return "NoSuchAdapter"
	case KindDuplicateService:
		return "DuplicateService"
	case KindNoSuchService:
		return "NoSuchService"
	case KindInvalidInitialService:
		return "InvalidInitialService"
	case KindDuplicateChannel:
		return "DuplicateChannel"
	case KindNoSuchChannel:
		return "NoSuchChannel"
	case KindConflictingAdapter:
		return "ConflictingAdapter"
	case KindNoSuchMethod:
		return "NoSuchMethod"
	case KindTypeError:
		return "TypeError"
	case KindInvalidValue:
		return "InvalidValue"
	case KindParseError:
		return "ParseError"
	case KindSerializeError:
		return "SerializeError"
	case KindGenericInternal:
		return "GenericInternal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type returned by every package in this
// module. ID is the offending identifier (adapter, service or channel),
// empty when the kind carries none; NoSuchMethod carries the method name
// in Detail.
type Error struct {
	Kind     Kind
	ID       string
	Expected string // only set for KindTypeError
	Got      string // only set for KindTypeError
	Detail   string // free-text context, e.g. the wrapped cause for KindGenericInternal
	cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTypeError:
		return fmt.Sprintf("%s(%s): expected %s, got %s", e.Kind, e.ID, e.Expected, e.Got)
	case KindGenericInternal:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return e.Kind.String()
	default:
		if e.ID == "" {
			return e.Kind.String()
		}
		if e.Detail != "" {
			return fmt.Sprintf("%s(%s): %s", e.Kind, e.ID, e.Detail)
		}
		return fmt.Sprintf("%s(%s)", e.Kind, e.ID)
	}
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match on Kind alone when comparing against a bare
// &Error{Kind: K}, which is the idiom the rest of this module uses.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.ID != "" && t.ID != e.ID {
		return false
	}
	return t.Kind == e.Kind
}

func DuplicateAdapter(id string) error    { return &Error{Kind: KindDuplicateAdapter, ID: id} }
func NoSuchAdapter(id string) error       { return &Error{Kind: KindNoSuchAdapter, ID: id} }
func DuplicateService(id string) error    { return &Error{Kind: KindDuplicateService, ID: id} }
func NoSuchService(id string) error       { return &Error{Kind: KindNoSuchService, ID: id} }
func InvalidInitialService(id string) error {
	return &Error{Kind: KindInvalidInitialService, ID: id}
}
func DuplicateChannel(id string) error { return &Error{Kind: KindDuplicateChannel, ID: id} }
func NoSuchChannel(id string) error    { return &Error{Kind: KindNoSuchChannel, ID: id} }
func ConflictingAdapter(id string) error {
	return &Error{Kind: KindConflictingAdapter, ID: id}
}
func NoSuchMethod(id, method string) error {
	return &Error{Kind: KindNoSuchMethod, ID: id, Detail: method}
}
func TypeError(id, expected, got string) error {
	return &Error{Kind: KindTypeError, ID: id, Expected: expected, Got: got}
}
func InvalidValue(id, detail string) error {
	return &Error{Kind: KindInvalidValue, ID: id, Detail: detail}
}
func ParseError(id string, cause error) error {
	return &Error{Kind: KindParseError, ID: id, Detail: errString(cause), cause: cause}
}
func SerializeError(id string, cause error) error {
	return &Error{Kind: KindSerializeError, ID: id, Detail: errString(cause), cause: cause}
}
func GenericInternal(detail string) error {
	return &Error{Kind: KindGenericInternal, Detail: detail}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := asError(err, &e); !ok {
		return KindUnknown, false
	}
	return e.Kind, true
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
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
