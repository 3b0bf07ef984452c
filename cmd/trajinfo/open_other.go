//go:build !unix

package main

import (
	"io"
	"os"

	"github.com/c360/trajstream/codec"
)

func openContainer(path string) (*codec.Container, io.Closer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := codec.DecodeContainer(data)
	if err != nil {
		return nil, nil, err
	}
	return c, io.NopCloser(nil), nil
}
