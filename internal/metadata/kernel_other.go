//go:build !linux && !darwin

package metadata

import "errors"

func kernelRelease() (string, error) {
	return "", errors.New("kernel release not supported on this platform")
}
