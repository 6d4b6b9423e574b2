package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rshade/rasterclip/internal/engine"
)

// Process exit codes.
const (
	ExitOK                    = 0
	ExitError                 = 1
	ExitCapabilityUnavailable = 3
)

// ExitCodeError carries a specific process exit code out of a command.
type ExitCodeError struct {
	Code   int
	Reason string
}

func (e *ExitCodeError) Error() string {
	return e.Reason
}

// ExitCode maps a command error to the process exit code: 0 for nil, the
// code of an ExitCodeError, ExitCapabilityUnavailable when the raster
// capability could not be checked out and ExitError otherwise.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exitErr *ExitCodeError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	if errors.Is(err, engine.ErrCapabilityUnavailable) ||
		engine.KindOf(err) == engine.CapabilityUnavailable {
		return ExitCapabilityUnavailable
	}
	return ExitError
}

// PrintError writes err to w followed by any hints attached to it.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	hints := engine.Hints(err)
	if hints == "" {
		return
	}
	for _, line := range strings.Split(hints, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "--") {
			_, _ = fmt.Fprintf(w, "  hint: %s\n", line)
		}
	}
}
