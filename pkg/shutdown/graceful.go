// Package shutdown runs registered cleanup functions once, in reverse
// registration order, when the process is asked to stop.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/CodeMonkeyCybersecurity/safelink/internal/logger"
)

// Handler manages graceful shutdown of the application
type Handler struct {
	mu            sync.Mutex
	shutdownFuncs []namedFunc
	once          sync.Once
	done          chan struct{}
	logger        *logger.Logger
}

type namedFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func NewHandler(log *logger.Logger) *Handler {
	return &Handler{
		done:   make(chan struct{}),
		logger: log.WithComponent("shutdown"),
	}
}

// Register adds a cleanup step. Steps run in reverse order of
// registration, so resources are released before the things they depend on.
func (h *Handler) Register(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.shutdownFuncs = append(h.shutdownFuncs, namedFunc{name: name, fn: fn})
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every registered step once. Later calls wait for the first
// to finish and return nil. The timeout bounds the whole sequence.
func (h *Handler) Shutdown(timeout time.Duration) error {
	var err error
	h.once.Do(func() {
		defer close(h.done)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		h.mu.Lock()
		funcs := make([]namedFunc, len(h.shutdownFuncs))
		copy(funcs, h.shutdownFuncs)
		h.mu.Unlock()

		h.logger.Infow("Starting graceful shutdown", "steps", len(funcs), "timeout", timeout.String())

		var failed int
		for i := len(funcs) - 1; i >= 0; i-- {
			f := funcs[i]
			if ctx.Err() != nil {
				h.logger.Warnw("Shutdown timeout reached, skipping step", "step", f.name)
				failed++
				continue
			}
			if stepErr := f.fn(ctx); stepErr != nil {
				h.logger.Errorw("Error during shutdown", "step", f.name, "error", stepErr)
				failed++
			}
		}
		if failed > 0 {
			err = fmt.Errorf("%d shutdown steps failed", failed)
		}
	})
	<-h.done
	return err
}

// Done returns a channel that's closed when shutdown is complete
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
