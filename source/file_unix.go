//go:build unix

package source

import (
	"github.com/c360/trajstream/codec"
)

// OpenFileSource maps the container at path and plays it. The mapping is
// released by Abort.
func OpenFileSource(path string, opts ...Option) (*FileSource, error) {
	mapped, err := codec.OpenContainerFile(path)
	if err != nil {
		return nil, err
	}
	f, err := NewFileSource(mapped.Container, opts...)
	if err != nil {
		mapped.Close()
		return nil, err
	}
	f.closer = mapped
	return f, nil
}
