package session

import "errors"

var ErrNoToken = errors.New("no active drive token")
