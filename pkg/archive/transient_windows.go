//go:build windows

package archive

import (
	"errors"

	"golang.org/x/sys/windows"
)

// Explorer previews, antivirus scanners and upload clients hold archives open
// with sharing modes that make create or rename fail until they let go.
func isBusy(err error) bool {
	return errors.Is(err, windows.ERROR_SHARING_VIOLATION) ||
		errors.Is(err, windows.ERROR_LOCK_VIOLATION) ||
		errors.Is(err, windows.ERROR_ACCESS_DENIED)
}
