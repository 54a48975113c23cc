//go:build linux || freebsd

package platform

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
)

var installHandlersOnce sync.Once

// ForceInstallSigHandlers installs the runtime's handling for memory faults.
//
// The Go runtime owns synchronous SIGSEGV/SIGBUS: they surface as runtime
// faults, and guest invocations convert them to errors through
// CallWithFaultProtection. What this installs is the handling of
// asynchronously delivered instances of those signals (e.g. kill -SEGV),
// which would otherwise terminate the process even when the embedder opted
// into the runtime's fault handling.
func ForceInstallSigHandlers() {
	installHandlersOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGSEGV, syscall.SIGBUS)
		go func() {
			for sig := range ch {
				if SigsegvPassthrough() {
					signal.Reset(sig.(syscall.Signal))
					if err := syscall.Kill(os.Getpid(), sig.(syscall.Signal)); err != nil {
						logrus.WithError(err).Error("re-raising passed-through signal")
					}
					return
				}
				logrus.WithField("signal", sig).Warn("ignoring asynchronously delivered memory fault signal")
			}
		}()
	})
}
