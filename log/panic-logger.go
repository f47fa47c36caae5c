package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"
)

// PanicHandler writes a stack trace to a crash log in the temp directory and
// then lets the panic continue. Defer it at the top of every goroutine that
// is not owned by the caller (e.g. file watchers).
func PanicHandler() {
	r := recover()

	if r == nil {
		return
	}

	filename := filepath.Join(os.TempDir(),
		time.Now().Format("mailbackend-crash-20060102-150405.log"))

	panicLog, err := os.OpenFile(filename, os.O_SYNC|os.O_APPEND|os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		// we tried, not possible. bye
		panic(r)
	}
	defer panicLog.Close()

	outputs := io.MultiWriter(panicLog, os.Stderr)

	// if any error happens here, we do not care.
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(panicLog, "%sPANIC CAUGHT!\n", strings.Repeat(" ", 34))
	fmt.Fprintf(panicLog, "%s%s\n", strings.Repeat(" ", 24),
		time.Now().Format("2006-01-02T15:04:05.000000-0700"))
	fmt.Fprintln(panicLog, strings.Repeat("#", 80))
	fmt.Fprintf(outputs, "mailbackend crashed: %v\n", r)
	panicLog.Write(debug.Stack()) //nolint:errcheck // see above
	fmt.Fprintf(os.Stderr, "\nThe stack trace was written to: %s\n", filename)
	Errorf("panic: %v (stack trace in %s)", r, filename)
	panic(r)
}
