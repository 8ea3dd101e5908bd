// Package viewer hands a rendered comparison to an external image viewer.
package viewer

import (
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"imgdiff/internal/imgio"
)

// DefaultGrace is how long the temp file outlives a viewer that exits
// immediately. Viewers that fork need the file to survive their startup.
const DefaultGrace = time.Second

// Show writes img into a temp dir as filename and runs the viewer command
// on it. An empty or "builtin" command selects the platform opener. The
// temp dir is removed once the viewer exits and at least grace has passed
// since it was started.
func Show(img image.Image, filename, command string, grace time.Duration) error {
	dir, err := os.MkdirTemp("", "imgdiff")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filename)
	if err := imgio.Save(path, img); err != nil {
		return err
	}
	return ShowPath(path, command, grace)
}

// ShowPath runs the viewer command on an existing file. The call does not
// return before grace has elapsed, so a caller may delete the file as soon
// as ShowPath comes back even when the viewer forks.
func ShowPath(path, command string, grace time.Duration) error {
	name, args := openerCommand(command)
	if name == "" {
		return fmt.Errorf("no image viewer available on %s", runtime.GOOS)
	}
	started := time.Now()
	if err := exec.Command(name, append(args, path)...).Run(); err != nil {
		return fmt.Errorf("viewer %s: %w", name, err)
	}
	if elapsed := time.Since(started); elapsed < grace {
		time.Sleep(grace - elapsed)
	}
	return nil
}

func openerCommand(command string) (string, []string) {
	if command != "" && command != "builtin" {
		return command, nil
	}
	switch runtime.GOOS {
	case "darwin":
		return "open", nil
	case "windows":
		return "cmd", []string{"/c", "start", ""}
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", nil
	default:
		return "", nil
	}
}
