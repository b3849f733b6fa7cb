// Package lifecycle runs the post-up and post-down shell hooks from
// [interface] in ip2char.toml, guaranteeing post-down fires exactly
// once regardless of which exit path the process takes — normal
// return, a fatal relay error, or SIGINT/SIGTERM. The signal-handling
// shape is grounded on mirage-client/mirageD.go's StartDaemon: a
// context canceled from a single signal.Notify goroutine, with
// cleanup run via a deferred func after cancellation.
package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adryzz/ip2char/internal/logf"
)

// Hooks is a scoped resource: Run executes the post-up hook (if any),
// returns a context that is canceled on SIGINT/SIGTERM, and a stop
// func. The post-down hook runs exactly once, on whichever comes
// first: a call to stop or a SIGINT/SIGTERM. Cancellation of the
// parent context alone does not run it.
type Hooks struct {
	postDown string
	logf     logf.Logf

	once sync.Once
}

// Run executes postUp synchronously (a non-fatal error is logged, not
// returned — original_source treats hook failure as a warning, not a
// reason to refuse to start) and returns a context derived from
// parent that is canceled the first time SIGINT, SIGTERM, or an
// explicit call to the returned stop func happens.
func Run(parent context.Context, postUp, postDown string, lf logf.Logf) (context.Context, *Hooks, context.CancelFunc) {
	if postUp != "" {
		if err := runHook(postUp, lf); err != nil {
			lf("lifecycle: post-up hook failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hooks{postDown: postDown, logf: lf}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-interrupt:
			lf("lifecycle: got signal %v; shutting down", s)
			cancel()
			h.runPostDown()
		case <-ctx.Done():
		}
	}()

	stop := func() {
		signal.Stop(interrupt)
		cancel()
		h.runPostDown()
	}
	return ctx, h, stop
}

// runPostDown executes the post-down hook exactly once, no matter how
// many times it is called or from how many goroutines.
func (h *Hooks) runPostDown() {
	h.once.Do(func() {
		if h.postDown == "" {
			return
		}
		if err := runHook(h.postDown, h.logf); err != nil {
			h.logf("lifecycle: post-down hook failed: %v", err)
		}
	})
}

func runHook(script string, lf logf.Logf) error {
	cmd := exec.Command("/bin/sh", "-c", script)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("lifecycle: running %q: %w", script, err)
	}
	return nil
}
