//go:build !unix

package relocate

import (
	"errors"
	"os"
)

// Without EXDEV to go on, any link failure on an existing source falls
// back to copying.
func isCrossDevice(err error) bool {
	var le *os.LinkError
	return errors.As(err, &le)
}
