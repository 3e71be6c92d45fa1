//go:build !linux
// +build !linux

package loader

import "errors"

func pin(int) error { return errors.New("loader: pinning is only supported on linux") }
