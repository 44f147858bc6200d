//go:build !linux

package main

import (
	"errors"

	"github.com/soypat/wcn3990"
)

func openUIO(path string, size int) (wcn3990.RegisterWindow, error) {
	return nil, errors.New("uio register windows need linux")
}
