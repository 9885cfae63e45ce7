package rawcodec

import(
	"errors"
	"fmt"
)

// Status codes reported by the LJ92 decoder
const(
	LJ92ErrorNone      =  0
	LJ92ErrorCorrupt   = -1
	LJ92ErrorNoMemory  = -2
	LJ92ErrorBadHandle = -3
	LJ92ErrorTooWide   = -4
)

var(
	ErrDecode = errors.New("rawcodec: decode failed")
	ErrEncode = errors.New("rawcodec: encode failed")
)

// DecodeError carries the decoder's status code for a malformed stream
type DecodeError struct {
	Code int
	Msg  string
}

func (e DecodeError)Error() string {
	return fmt.Sprintf("lj92 decode (code %d): %s", e.Code, e.Msg)
}

func (e DecodeError)Is(target error) bool { return target == ErrDecode }

func corrupt(format string, args ...interface{}) error {
	return DecodeError{Code: LJ92ErrorCorrupt, Msg: fmt.Sprintf(format, args...)}
}
