//go:build !linux

package ksu

import "errors"

func sendTryUmount(string) error {
	return errors.ErrUnsupported
}
