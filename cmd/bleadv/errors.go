package main

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/srg/bleadv/internal/manager"
	"github.com/srg/bleadv/pkg/config"
)

// Command-level errors
var (
	// ErrResultsMissing indicates the manager did not report every submitted
	// start before the scenario deadline.
	ErrResultsMissing = errors.New("results missing")
)

// FormatUserError turns an error chain into a message for the terminal.
func FormatUserError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, fs.ErrNotExist):
		return "file not found: " + strip(err.Error(), ": no such file or directory")
	case errors.Is(err, config.ErrInvalidConfig):
		return "configuration error: " + strip(err.Error(), config.ErrInvalidConfig.Error()+": ")
	case errors.Is(err, ErrInvalidScenario):
		return "scenario error: " + strip(err.Error(), ErrInvalidScenario.Error()+": ")
	case errors.Is(err, manager.ErrPermissionDenied):
		return "advertising request denied: " + err.Error()
	case errors.Is(err, manager.ErrQueueFull):
		return "too many pending advertising requests, increase queue_size"
	default:
		return err.Error()
	}
}

func strip(s, part string) string {
	return strings.Replace(s, part, "", 1)
}
