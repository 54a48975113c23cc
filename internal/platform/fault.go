package platform

import (
	"runtime/debug"
	"sync/atomic"
)

// sigsegvPassthrough, when set, makes the runtime's handlers ignore
// SIGSEGV/SIGBUS and let them take down the process, which is what a host
// embedding this runtime under its own crash reporter wants.
var sigsegvPassthrough atomic.Bool

// SetSigsegvPassthrough sets the process-global passthrough flag.
func SetSigsegvPassthrough() {
	sigsegvPassthrough.Store(true)
}

// SigsegvPassthrough reports the process-global passthrough flag.
func SigsegvPassthrough() bool {
	return sigsegvPassthrough.Load()
}

// CallWithFaultProtection runs f converting synchronous memory faults into
// an error instead of a process abort. When the passthrough flag is set the
// fault is not intercepted.
func CallWithFaultProtection(f func() error) (err error) {
	if SigsegvPassthrough() {
		return f()
	}
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			if fault, ok := r.(error); ok {
				err = fault
				return
			}
			panic(r)
		}
	}()
	return f()
}
