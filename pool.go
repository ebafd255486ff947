package dispatch

import (
	"context"
	"sync"

	"github.com/Swind/go-dispatch/core"
)

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately. Later calls are no-ops until shutdown.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", workers)
	globalThreadPool.Start(context.Background())
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
	}
}

// CreateQueue creates a SerialQueue backed by the global thread pool.
func CreateQueue(label string, options ...DispatchOption) *SerialQueue {
	return core.NewSerialQueue(label, GetGlobalThreadPool(), options...)
}

// CreateQueueWithConfig is CreateQueue with an explicit queue config.
func CreateQueueWithConfig(label string, config *QueueConfig, options ...DispatchOption) *SerialQueue {
	return core.NewSerialQueueWithConfig(label, GetGlobalThreadPool(), config, options...)
}
