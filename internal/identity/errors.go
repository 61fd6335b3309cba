package identity

import "errors"

var (
	ErrUnauthenticated   = errors.New("caller could not be identified")
	ErrAmbiguousIdentity = errors.New("identity maps to more than one tenant")
)
