package mlv

import "errors"

var(
	ErrOpen             = errors.New("mlv: cannot open")
	ErrFormat           = errors.New("mlv: invalid file header")
	ErrCorrupted        = errors.New("mlv: corrupted block stream")
	ErrEmpty            = errors.New("mlv: no video frames")
	ErrIO               = errors.New("mlv: read failed")
	ErrIndexOutOfRange  = errors.New("mlv: frame index out of range")
	ErrResourceBusy     = errors.New("mlv: no reader available")
	ErrExport           = errors.New("mlv: export failed")
)
