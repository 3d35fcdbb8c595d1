package bucketpool

import (
	"reflect"
	"sync"
)

// sharedPools maps an element reflect.Type to its *ArrayPool.
var sharedPools sync.Map

// Shared returns the process-wide pool for element type T, creating it
// with default options on first use. The shared pool is never disposed.
func Shared[T any]() *ArrayPool[T] {
	key := reflect.TypeFor[T]()
	if p, ok := sharedPools.Load(key); ok {
		return p.(*ArrayPool[T])
	}
	p, _ := sharedPools.LoadOrStore(key, New[T]())
	return p.(*ArrayPool[T])
}
