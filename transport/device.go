// Package transport
package transport

import "os"

// OpenDevice opens an RPC character device, /dev/xmm0/rpc on stock kernels.
// Read cancellation depends on the driver supporting poll; CancelRead
// reports ErrCancelUnsupported when it does not.
func OpenDevice(path string, opts ...Option) (Transport, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return New(f, opts...), nil
}
