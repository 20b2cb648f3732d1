package project

import "errors"

var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrBadRequest = errors.New("bad request")
)

func IsErrNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsErrForbidden(err error) bool  { return errors.Is(err, ErrForbidden) }
func IsErrBadRequest(err error) bool { return errors.Is(err, ErrBadRequest) }
