package tagging

import (
	"github.com/cockroachdb/errors"
)

// Error kinds carried in Result.Message of a failed operation.
const (
	MessageSuccess    = "success"
	ExistsKind        = "EXISTS"
	NotExistsKind     = "NOT_EXISTS"
	MissingParamsKind = "MISSING_PARAMETERS"
	OperErrorKind     = "OPER_ERROR"
)

// Sentinel errors matching the failure kinds, returned by Result.Err.
var (
	ErrExists            = errors.New("tag already exists")
	ErrNotExists         = errors.New("tag does not exist")
	ErrMissingParameters = errors.New("missing parameters")
	ErrOperation         = errors.New("storage operation affected an unexpected number of rows")
)

// Result is the outcome of a mutating operation. Expected failures are reported
// here rather than as errors.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      uint64 `json:"id,omitempty"`
	Tag     *Ref   `json:"tag,omitempty"`
	Need    string `json:"need,omitempty"`
}

// ListResult is one page of a listing. Total is only set when a count was requested.
type ListResult[T any] struct {
	List  []T  `json:"list"`
	Total *int `json:"total,omitempty"`
}

// Ok builds a successful result. id may be zero when there is nothing to report.
func Ok(id uint64) Result {
	return Result{Success: true, Message: MessageSuccess, ID: id}
}

// Exists reports a name collision with the tag that already holds the name.
func Exists(id uint64) Result {
	return Result{Message: ExistsKind, ID: id}
}

// NotExists reports a reference that does not resolve to a live tag.
func NotExists(ref Ref) Result {
	return Result{Message: NotExistsKind, Tag: &ref}
}

// MissingParameters reports a required field the caller left out.
func MissingParameters(need string) Result {
	return Result{Message: MissingParamsKind, Need: need}
}

// OperError reports a write that did not affect what it should have.
func OperError() Result {
	return Result{Message: OperErrorKind}
}

// Err converts a failed result into an error wrapping one of the sentinels.
// It returns nil for successful results.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	switch r.Message {
	case ExistsKind:
		return errors.Wrapf(ErrExists, "id %d", r.ID)
	case NotExistsKind:
		if r.Tag != nil {
			return errors.Wrapf(ErrNotExists, "%s", r.Tag)
		}
		return ErrNotExists
	case MissingParamsKind:
		return errors.Wrapf(ErrMissingParameters, "need %s", r.Need)
	case OperErrorKind:
		return ErrOperation
	default:
		return errors.Newf("operation failed: %s", r.Message)
	}
}
