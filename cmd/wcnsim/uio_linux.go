//go:build linux

package main

import "github.com/soypat/wcn3990"

func openUIO(path string, size int) (wcn3990.RegisterWindow, error) {
	w, err := wcn3990.OpenUIO(path, size)
	if err != nil {
		return nil, err
	}
	return w, nil
}
