package device

import "errors"

// ErrFrameTooLarge is returned by PrepareTx when the requested size exceeds
// what the device's buffer (and the underlying link's MTU) can carry.
var ErrFrameTooLarge = errors.New("device: frame exceeds link MTU")
