//go:build !linux && !freebsd && !darwin && !windows

package vmem

import "errors"

// errUnsupported is returned on platforms without page-protection
// primitives. The heap cannot exist here: without faulting pages there is
// nothing to detect with.
var errUnsupported = errors.New("vmem: virtual memory protection not supported on this platform")

// Reserve fails on platforms without page protection support.
func Reserve(size int) ([]byte, error) { return nil, errUnsupported }

// Release fails on platforms without page protection support.
func Release(mem []byte) error { return errUnsupported }

// Commit fails on platforms without page protection support.
func Commit(mem []byte) error { return errUnsupported }

// Decommit fails on platforms without page protection support.
func Decommit(mem []byte) error { return errUnsupported }
