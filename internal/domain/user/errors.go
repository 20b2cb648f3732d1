package user

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrBadRequest    = errors.New("bad request")
	ErrAlreadyExists = errors.New("already exists")
)

func IsErrNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsErrBadRequest(err error) bool    { return errors.Is(err, ErrBadRequest) }
func IsErrAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
