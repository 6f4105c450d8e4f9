package cache

import "time"

// BytesCache stores raw bytes under a key with a TTL. The price source
// keeps serialized market snapshots in one to absorb reads between
// update cycles. A miss is (nil, false, nil); err is reserved for
// backend failures.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
