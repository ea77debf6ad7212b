//go:build !linux

package module

import "errors"

func lgetxattr(string, string) ([]byte, error) {
	return nil, errors.ErrUnsupported
}
