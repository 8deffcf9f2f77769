//go:build windows

package logger

import (
	"os"

	"golang.org/x/sys/windows"
)

// Windows 10 Build 16257 added support for ANSI colour output once virtual
// terminal processing is enabled on the console.
func init() {
	var mode uint32
	stderr := windows.Handle(os.Stderr.Fd())

	if err := windows.GetConsoleMode(stderr, &mode); err != nil {
		return
	}

	mode |= windows.ENABLE_VIRTUAL_TERMINAL_PROCESSING
	windowsColors = windows.SetConsoleMode(stderr, mode) == nil
}
