// Package guard switches the process into test mode when imported.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ACADEMY_TEST_MODE") == "" {
			_ = os.Setenv("ACADEMY_TEST_MODE", "1")
		}
	})
}
