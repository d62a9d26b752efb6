// Package guard flips PAYPROC_TEST_MODE on for test binaries that import it.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PAYPROC_TEST_MODE") == "" {
			_ = os.Setenv("PAYPROC_TEST_MODE", "1")
		}
	})
}
