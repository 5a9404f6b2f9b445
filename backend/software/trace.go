package software

import (
	"slices"
	"sync"
)

// Trace operation names.
const (
	OpCreateSurface    = "create-surface"
	OpDestroySurface   = "destroy-surface"
	OpCreateSwapchain  = "create-swapchain"
	OpResizeSwapchain  = "resize-swapchain"
	OpDestroySwapchain = "destroy-swapchain"
	OpWaitIdle         = "wait-idle"
	OpExportTexture    = "export-texture"
	OpImportTexture    = "import-texture"
	OpExportSemaphore  = "export-semaphore"
	OpImportSemaphore  = "import-semaphore"
	OpDestroyTexture   = "destroy-texture"
	OpDestroySemaphore = "destroy-semaphore"
	OpColorSpace       = "colorspace"
	OpAcquire          = "acquire"
	OpPresent          = "present"
	OpMapFrame         = "map-frame"
	OpRender           = "render"
)

// Trace records device operations in execution order.
type Trace struct {
	mu     sync.Mutex
	events []string
}

func (t *Trace) add(op string) {
	t.mu.Lock()
	t.events = append(t.events, op)
	t.mu.Unlock()
}

// Events returns a copy of the recorded operations.
func (t *Trace) Events() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Count returns how many times op was recorded.
func (t *Trace) Count(op string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, e := range t.events {
		if e == op {
			n++
		}
	}
	return n
}

// Reset discards the recorded operations.
func (t *Trace) Reset() {
	t.mu.Lock()
	t.events = nil
	t.mu.Unlock()
}

// IdleBeforeDestroy reports whether every destroy operation in the trace is
// preceded by a wait-idle with no GPU submission in between.
func (t *Trace) IdleBeforeDestroy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	idle := false
	for _, e := range t.events {
		switch e {
		case OpWaitIdle:
			idle = true
		case OpRender, OpPresent, OpMapFrame, OpAcquire:
			idle = false
		case OpDestroyTexture, OpDestroySemaphore, OpDestroySwapchain, OpDestroySurface:
			if !idle {
				return false
			}
		}
	}
	return true
}
