// Package guard forces test mode before any runtime code can observe the
// environment. Import it for side effects from packages whose tests would
// otherwise trigger startup side effects.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("REGISTRIA_TEST_MODE") == "" {
			_ = os.Setenv("REGISTRIA_TEST_MODE", "1")
		}
	})
}
