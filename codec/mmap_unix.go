//go:build unix

package codec

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/c360/trajstream/errors"
)

// MappedContainer is a container decoded in place from a read-only memory
// mapping. Frames stay valid until Close.
type MappedContainer struct {
	*Container
	data []byte
}

// OpenContainerFile maps path and decodes it as a container.
func OpenContainerFile(path string) (*MappedContainer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "codec", "OpenContainerFile", "open file")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "codec", "OpenContainerFile", "stat file")
	}
	size := int(info.Size())
	if size < signatureBytes {
		return nil, errors.WrapFormat(fmt.Errorf("%w: %s is %d bytes", ErrNotContainer, path, size),
			"codec", "OpenContainerFile", "check size")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "codec", "OpenContainerFile", "mmap file")
	}

	c, err := DecodeContainer(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return &MappedContainer{Container: c, data: data}, nil
}

// Close releases the mapping
func (m *MappedContainer) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	return unix.Munmap(data)
}
