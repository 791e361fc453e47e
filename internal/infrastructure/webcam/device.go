package webcam

import (
	"fmt"
	"io/fs"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/Xausdorf/qr-pay-hub/pay-capture/internal/domain/camera"
)

func devicePath(index int) string {
	return fmt.Sprintf("/dev/video%d", index)
}

// probe reports a missing device node or one the process may not open. OpenCV
// only says "not opened" in both cases.
func probe(path string) error {
	if runtime.GOOS != "linux" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	switch {
	case err == nil:
		return f.Close()
	case errors.Is(err, fs.ErrNotExist):
		return errors.Wrap(camera.ErrNoDevice, path)
	case errors.Is(err, fs.ErrPermission):
		return errors.Wrap(camera.ErrPermissionDenied, path)
	default:
		return errors.Wrapf(err, "probe %s", path)
	}
}
