package platform

import "errors"

var ErrUnsupported = errors.New("restart is not supported on darwin")

func Restart() error {
	return ErrUnsupported
}
