package safe

import (
	"PSyncProject/logger"
)

// SafeGo starts a goroutine that recovers from panic,
// so a panicking worker never takes down the whole process.
func SafeGo(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[SafeGo] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}

// Run invokes f inline with panic recovery and returns whether it panicked.
// Used by dispatch paths that must isolate one handler from the rest.
func Run(name string, f func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			logger.Errorf("[safe.Run] %s panic recovered: %v", name, r)
		}
	}()
	f()
	return false
}
