package capability

import (
	"errors"
	"fmt"

	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorDomain is the ErrorInfo domain used on every status this instance
// produces or understands.
const ErrorDomain = "sitewhere.io"

// Level is the severity a peer attached to a failure.
type Level string

const (
	LevelError   Level = "ERROR"
	LevelWarning Level = "WARNING"
	LevelInfo    Level = "INFO"
)

const levelKey = "level"

// SystemError is a classified failure returned by a remote capability call
// or produced by a local RPC handler. Code is a stable machine-readable
// reason such as "InvalidDeviceToken".
type SystemError struct {
	Code    string
	Level   Level
	Status  codes.Code
	Message string
	// Err is the errdefs-classified cause.
	Err error
}

func (e *SystemError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Level, e.Message)
}

func (e *SystemError) Unwrap() error {
	return e.Err
}

// GRPCStatus encodes the error as a status carrying an ErrorInfo detail.
func (e *SystemError) GRPCStatus() *status.Status {
	st := status.New(e.Status, e.Message)
	withInfo, err := st.WithDetails(&errdetails.ErrorInfo{
		Reason:   e.Code,
		Domain:   ErrorDomain,
		Metadata: map[string]string{levelKey: string(e.Level)},
	})
	if err != nil {
		return st
	}
	return withInfo
}

// NewSystemError builds a local error with the given reason, classified by
// the errdefs sentinel in cause.
func NewSystemError(code string, level Level, cause error) *SystemError {
	st, _ := status.FromError(errgrpc.ToGRPC(cause))
	return &SystemError{
		Code:    code,
		Level:   level,
		Status:  st.Code(),
		Message: cause.Error(),
		Err:     cause,
	}
}

// ToStatus converts a handler error into a status error. Errors that are
// already *SystemError keep their reason; others are classified through
// errdefs and given the reason of their status code.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var se *SystemError
	if errors.As(err, &se) {
		return se.GRPCStatus().Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	st, _ := status.FromError(errgrpc.ToGRPC(err))
	code := st.Code()
	if code == codes.Unknown {
		code = codes.Internal
	}
	return (&SystemError{Code: code.String(), Level: LevelError, Status: code, Message: err.Error()}).GRPCStatus().Err()
}

// FromError decodes a status error returned by a peer. The result is a
// *SystemError whose cause satisfies the matching errdefs check, for example
// errdefs.IsNotFound for codes.NotFound. Non-status errors are returned
// unchanged.
func FromError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	se := &SystemError{
		Code:    st.Code().String(),
		Level:   LevelError,
		Status:  st.Code(),
		Message: st.Message(),
		Err:     errgrpc.ToNative(err),
	}
	for _, d := range st.Details() {
		info, ok := d.(*errdetails.ErrorInfo)
		if !ok || info.GetDomain() != ErrorDomain {
			continue
		}
		if info.GetReason() != "" {
			se.Code = info.GetReason()
		}
		if lvl := info.GetMetadata()[levelKey]; lvl != "" {
			se.Level = Level(lvl)
		}
	}
	return se
}
