//go:build unix

package main

import (
	"io"

	"github.com/c360/trajstream/codec"
)

func openContainer(path string) (*codec.Container, io.Closer, error) {
	m, err := codec.OpenContainerFile(path)
	if err != nil {
		return nil, nil, err
	}
	return m.Container, m, nil
}
