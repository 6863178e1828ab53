package domain

import "errors"

var ErrNoSession = errors.New("no active session")
var ErrNoIdentity = errors.New("no identity")
var ErrNotAcceptable = errors.New("request not acceptable")
var ErrNetworkSuppressed = errors.New("network suppressed while returning from background")
var ErrUnauthorized = errors.New("unauthorized")
