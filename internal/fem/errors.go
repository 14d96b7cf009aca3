package fem

import "errors"

var (
	ErrInvalidDegree   = errors.New("fem: polynomial degree must be at least 1")
	ErrShapeMismatch   = errors.New("fem: kernel shape does not match spaces")
	ErrSparsityChanged = errors.New("fem: tensor sparsity does not match form")
	ErrUnknownForm     = errors.New("fem: unknown form")
)
