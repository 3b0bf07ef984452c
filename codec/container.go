package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/c360/trajstream/errors"
)

// Signature opens every binary container.
const Signature = "SIMULARIUMBINARY"

// ContainerVersion is the layout version written by EncodeContainer.
const ContainerVersion = 1

const (
	signatureBytes = 16
	subHeaderBytes = 12
	tocEntryBytes  = 12
	blockHeadBytes = 8
)

// BlockType identifies the content of a container block.
type BlockType uint32

// Block types.
const (
	BlockSpatialDataJSON   BlockType = 0
	BlockTrajectoryInfo    BlockType = 1
	BlockPlotData          BlockType = 2
	BlockSpatialDataBinary BlockType = 3
)

// String returns the block type name
func (bt BlockType) String() string {
	switch bt {
	case BlockSpatialDataJSON:
		return "spatial-data-json"
	case BlockTrajectoryInfo:
		return "trajectory-info"
	case BlockPlotData:
		return "plot-data"
	case BlockSpatialDataBinary:
		return "spatial-data-binary"
	default:
		return fmt.Sprintf("block-%d", uint32(bt))
	}
}

// IsSpatial reports whether the block carries frames.
func (bt BlockType) IsSpatial() bool {
	return bt == BlockSpatialDataJSON || bt == BlockSpatialDataBinary
}

// Container errors
var (
	ErrNotContainer     = stderrors.New("not a recognized container")
	ErrNoBlocks         = stderrors.New("container has no blocks")
	ErrNoSpatialData    = stderrors.New("no spatial data block found")
	ErrDuplicateBlock   = stderrors.New("duplicate block")
	ErrTruncatedHeader  = stderrors.New("container header truncated")
	ErrBlockOutOfBounds = stderrors.New("block out of bounds")
)

// Block is one typed region of a container. Data is the payload without
// the block header or padding.
type Block struct {
	Type   BlockType
	Offset uint32
	Data   []byte
}

// Container is a decoded binary container.
type Container struct {
	Version        uint32
	Blocks         []Block
	TrajectoryInfo TrajectoryInfo
	PlotData       map[string]any
	Frames         FrameAccessor
}

// Block returns the first block of type bt.
func (c *Container) Block(bt BlockType) (Block, bool) {
	for _, b := range c.Blocks {
		if b.Type == bt {
			return b, true
		}
	}
	return Block{}, false
}

// IsBinaryContainer reports whether b starts with the container signature.
// It inspects only the first 16 bytes.
func IsBinaryContainer(b []byte) bool {
	return len(b) >= signatureBytes && string(b[:signatureBytes]) == Signature
}

// DecodeContainer parses a binary container. Exactly one spatial data block
// is required; trajectory info and plot data are optional JSON blocks.
func DecodeContainer(b []byte) (*Container, error) {
	if !IsBinaryContainer(b) {
		return nil, errors.WrapFormat(ErrNotContainer, "codec", "DecodeContainer", "check signature")
	}

	blocks, version, err := readTOC(b)
	if err != nil {
		return nil, errors.WrapFormat(err, "codec", "DecodeContainer", "read table of contents")
	}

	c := &Container{Version: version, Blocks: blocks}
	var spatial []Block
	var haveInfo, havePlot bool

	for _, blk := range blocks {
		switch {
		case blk.Type.IsSpatial():
			spatial = append(spatial, blk)
		case blk.Type == BlockTrajectoryInfo:
			if haveInfo {
				return nil, errors.WrapFormat(fmt.Errorf("%w: %s", ErrDuplicateBlock, blk.Type),
					"codec", "DecodeContainer", "read blocks")
			}
			haveInfo = true
			info, err := DecodeTrajectoryInfo(blk.Data)
			if err != nil {
				return nil, err
			}
			c.TrajectoryInfo = info
		case blk.Type == BlockPlotData:
			if havePlot {
				return nil, errors.WrapFormat(fmt.Errorf("%w: %s", ErrDuplicateBlock, blk.Type),
					"codec", "DecodeContainer", "read blocks")
			}
			havePlot = true
			if err := json.Unmarshal(blk.Data, &c.PlotData); err != nil {
				return nil, errors.WrapFormat(err, "codec", "DecodeContainer", "decode plot data")
			}
		}
	}

	if len(spatial) == 0 {
		return nil, errors.WrapFormat(ErrNoSpatialData, "codec", "DecodeContainer", "locate spatial data")
	}
	if len(spatial) > 1 {
		return nil, errors.WrapFormat(fmt.Errorf("%w: %d spatial data blocks", ErrDuplicateBlock, len(spatial)),
			"codec", "DecodeContainer", "locate spatial data")
	}

	c.Frames, err = decodeSpatial(spatial[0])
	if err != nil {
		return nil, err
	}
	return c, nil
}

func readTOC(b []byte) ([]Block, uint32, error) {
	if len(b) < signatureBytes+subHeaderBytes {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrTruncatedHeader, len(b))
	}

	sub := b[signatureBytes:]
	headerLength := binary.LittleEndian.Uint32(sub[0:4])
	version := binary.LittleEndian.Uint32(sub[4:8])
	count := binary.LittleEndian.Uint32(sub[8:12])

	if count == 0 {
		return nil, version, ErrNoBlocks
	}
	tocEnd := uint64(signatureBytes+subHeaderBytes) + uint64(count)*tocEntryBytes
	if tocEnd > uint64(len(b)) || uint64(headerLength) < tocEnd || uint64(headerLength) > uint64(len(b)) {
		return nil, version, fmt.Errorf("%w: header length %d, %d blocks, %d bytes",
			ErrTruncatedHeader, headerLength, count, len(b))
	}

	blocks := make([]Block, 0, count)
	for i := uint32(0); i < count; i++ {
		entry := b[signatureBytes+subHeaderBytes+i*tocEntryBytes:]
		offset := binary.LittleEndian.Uint32(entry[0:4])
		typ := BlockType(binary.LittleEndian.Uint32(entry[4:8]))
		size := binary.LittleEndian.Uint32(entry[8:12])

		if size < blockHeadBytes || offset < headerLength || uint64(offset)+uint64(size) > uint64(len(b)) {
			return nil, version, fmt.Errorf("%w: block %d at %d size %d", ErrBlockOutOfBounds, i, offset, size)
		}
		head := b[offset:]
		if BlockType(binary.LittleEndian.Uint32(head[0:4])) != typ || binary.LittleEndian.Uint32(head[4:8]) != size {
			return nil, version, fmt.Errorf("block %d header disagrees with table of contents", i)
		}

		blocks = append(blocks, Block{
			Type:   typ,
			Offset: offset,
			Data:   b[offset+blockHeadBytes : offset+size],
		})
	}

	return blocks, version, nil
}

func decodeSpatial(blk Block) (FrameAccessor, error) {
	if blk.Type == BlockSpatialDataBinary {
		return ParseBinaryFrames(blk.Data)
	}

	var bundle VisDataBundle
	if err := json.Unmarshal(blk.Data, &bundle); err != nil {
		return nil, errors.WrapFormat(err, "codec", "DecodeContainer", "decode json spatial data")
	}
	frames := BundleFrames(bundle.BundleData)
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].FrameNumber < frames[j].FrameNumber })
	return frames, nil
}

// DecodeTrajectoryInfo validates and decodes trajectory metadata. Fields
// outside TrajectoryInfo, such as a message envelope's msgType, are ignored.
func DecodeTrajectoryInfo(raw []byte) (TrajectoryInfo, error) {
	var info TrajectoryInfo
	if err := ValidateTrajectoryInfo(raw); err != nil {
		return info, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return TrajectoryInfo{}, errors.WrapFormat(err, "codec", "DecodeTrajectoryInfo", "decode trajectory info")
	}
	return info, nil
}

// EncodeContainer writes blocks into a container. Block offsets in the
// input are ignored.
func EncodeContainer(blocks ...Block) []byte {
	headerLength := signatureBytes + subHeaderBytes + tocEntryBytes*len(blocks)

	var buf bytes.Buffer
	buf.WriteString(Signature)
	writeU32(&buf, uint32(headerLength))
	writeU32(&buf, ContainerVersion)
	writeU32(&buf, uint32(len(blocks)))

	offset := headerLength
	for _, blk := range blocks {
		size := blockHeadBytes + len(blk.Data)
		writeU32(&buf, uint32(offset))
		writeU32(&buf, uint32(blk.Type))
		writeU32(&buf, uint32(size))
		offset += padded(size)
	}

	for _, blk := range blocks {
		size := blockHeadBytes + len(blk.Data)
		writeU32(&buf, uint32(blk.Type))
		writeU32(&buf, uint32(size))
		buf.Write(blk.Data)
		buf.Write(make([]byte, padded(size)-size))
	}

	return buf.Bytes()
}

func padded(n int) int {
	return (n + 3) &^ 3
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
