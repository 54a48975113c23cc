//go:build !(linux || freebsd)

package platform

// ForceInstallSigHandlers is a no-op on platforms where the runtime cannot
// observe memory fault signals.
func ForceInstallSigHandlers() {}
