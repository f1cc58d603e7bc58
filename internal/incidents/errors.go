package incidents

import "errors"

// Kind classifies an error for the boundary layer.
type Kind uint8

// Error kinds.
const (
	KindUnexpected Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "unexpected"
	}
}

// Error is a classified incident error.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches kind sentinels (errors with an empty message) by kind, so
// errors.Is(err, ErrNotFound) holds for every not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message == "" {
		return t.Kind == e.Kind
	}
	return t == e
}

// Kind sentinels.
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrConflict   = &Error{Kind: KindConflict}
)

// Not found errors.
var (
	ErrIncidentNotFound = &Error{Kind: KindNotFound, Message: "incident not found"}
	ErrExamNotFound     = &Error{Kind: KindNotFound, Message: "exam not found"}
	ErrScriptNotFound   = &Error{Kind: KindNotFound, Message: "script not found"}
	ErrUserNotFound     = &Error{Kind: KindNotFound, Message: "user not found"}
)

// Conflict errors.
var (
	ErrIncidentNotResolved = &Error{Kind: KindConflict, Message: "only resolved or closed incidents can be deleted"}
)

// Validation errors.
var (
	ErrInvalidType         = &Error{Kind: KindValidation, Message: "invalid incident type"}
	ErrInvalidSeverity     = &Error{Kind: KindValidation, Message: "invalid severity"}
	ErrInvalidStatus       = &Error{Kind: KindValidation, Message: "invalid status"}
	ErrTitleRequired       = &Error{Kind: KindValidation, Message: "title is required"}
	ErrDescriptionRequired = &Error{Kind: KindValidation, Message: "description is required"}
	ErrResolutionRequired  = &Error{Kind: KindValidation, Message: "resolution is required"}
	ErrInvalidSortField    = &Error{Kind: KindValidation, Message: "invalid sort field"}
	ErrInvalidSortOrder    = &Error{Kind: KindValidation, Message: "sort order must be asc or desc"}
	ErrInvalidPage         = &Error{Kind: KindValidation, Message: "page must be a positive integer"}
	ErrInvalidLimit        = &Error{Kind: KindValidation, Message: "limit must be a positive integer"}
	ErrInvalidDateRange    = &Error{Kind: KindValidation, Message: "startDate must not be after endDate"}
	ErrInvalidReporter     = &Error{Kind: KindValidation, Message: "reporter id is required"}
)

// KindOf returns the kind of err. Unclassified errors are KindUnexpected.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnexpected
}
