package codec

import (
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"math"
	"sort"

	"github.com/c360/trajstream/errors"
)

// binaryFramesVersion is the layout version written by EncodeBinaryFrames.
const binaryFramesVersion = 1

// ErrAgentCount reports a frame whose declared agent count disagrees with its records.
var ErrAgentCount = stderrors.New("agent count mismatch")

// FrameHeader identifies a frame without decoding its agents.
type FrameHeader struct {
	FrameNumber int
	Time        float64
}

// FrameAccessor gives indexed access to the frames of a spatial data block.
// Frames are decoded on demand so a malformed frame fails only itself.
type FrameAccessor interface {
	NumFrames() int
	Header(i int) (FrameHeader, error)
	Frame(i int) (Frame, error)
}

// FrameNumbers lists the frame numbers of acc in storage order. It fails on
// the first frame whose header cannot be read.
func FrameNumbers(acc FrameAccessor) ([]int, error) {
	numbers := make([]int, acc.NumFrames())
	for i := range numbers {
		h, err := acc.Header(i)
		if err != nil {
			return nil, err
		}
		numbers[i] = h.FrameNumber
	}
	return numbers, nil
}

// IndexOfFrameNumber finds the index of frame n. Frames are stored in
// ascending frame-number order.
func IndexOfFrameNumber(acc FrameAccessor, n int) (int, bool) {
	var failed bool
	idx := sort.Search(acc.NumFrames(), func(i int) bool {
		h, err := acc.Header(i)
		if err != nil {
			failed = true
			return true
		}
		return h.FrameNumber >= n
	})
	if failed || idx >= acc.NumFrames() {
		return 0, false
	}
	h, err := acc.Header(idx)
	if err != nil || h.FrameNumber != n {
		return 0, false
	}
	return idx, true
}

// IndexOfTime finds the frame closest to t, provided it lies within tol.
func IndexOfTime(acc FrameAccessor, t, tol float64) (int, bool) {
	count := acc.NumFrames()
	var failed bool
	idx := sort.Search(count, func(i int) bool {
		h, err := acc.Header(i)
		if err != nil {
			failed = true
			return true
		}
		return h.Time >= t
	})
	if failed {
		return 0, false
	}

	best, bestDelta := -1, math.Inf(1)
	for _, i := range []int{idx - 1, idx} {
		if i < 0 || i >= count {
			continue
		}
		h, err := acc.Header(i)
		if err != nil {
			continue
		}
		if d := math.Abs(h.Time - t); d < bestDelta {
			best, bestDelta = i, d
		}
	}
	if best < 0 || bestDelta > tol {
		return 0, false
	}
	return best, true
}

// BinaryFrames is a FrameAccessor over a binary spatial-data payload.
type BinaryFrames struct {
	data    []byte
	offsets []uint32
	lengths []uint32
}

// ParseBinaryFrames indexes a binary spatial-data payload. An empty payload
// holds zero frames. Frame bodies are validated only when read.
func ParseBinaryFrames(payload []byte) (*BinaryFrames, error) {
	bf := &BinaryFrames{data: payload}
	if len(payload) == 0 {
		return bf, nil
	}
	if len(payload) < 8 {
		return nil, errors.WrapFormat(fmt.Errorf("payload of %d bytes", len(payload)),
			"codec", "ParseBinaryFrames", "read spatial header")
	}

	count := binary.LittleEndian.Uint32(payload[4:8])
	indexEnd := 8 + 8*uint64(count)
	if indexEnd > uint64(len(payload)) {
		return nil, errors.WrapFormat(fmt.Errorf("%d frames declared in %d bytes", count, len(payload)),
			"codec", "ParseBinaryFrames", "read frame index")
	}

	bf.offsets = make([]uint32, count)
	bf.lengths = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		off := binary.LittleEndian.Uint32(payload[8+4*i:])
		length := binary.LittleEndian.Uint32(payload[8+4*count+4*i:])
		if uint64(off)+uint64(length) > uint64(len(payload)) || length < frameHeaderBytes {
			return nil, errors.WrapFormat(fmt.Errorf("frame %d spans [%d,+%d) of %d bytes", i, off, length, len(payload)),
				"codec", "ParseBinaryFrames", "read frame index")
		}
		bf.offsets[i] = off
		bf.lengths[i] = length
	}

	return bf, nil
}

// NumFrames returns the number of frames in the payload
func (bf *BinaryFrames) NumFrames() int { return len(bf.offsets) }

func (bf *BinaryFrames) body(i int) ([]byte, error) {
	if i < 0 || i >= len(bf.offsets) {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", i, len(bf.offsets))
	}
	return bf.data[bf.offsets[i] : bf.offsets[i]+bf.lengths[i]], nil
}

// Header reads frame number and time of frame i
func (bf *BinaryFrames) Header(i int) (FrameHeader, error) {
	b, err := bf.body(i)
	if err != nil {
		return FrameHeader{}, errors.WrapInvalid(err, "codec", "Header", "locate frame")
	}
	return FrameHeader{
		FrameNumber: int(binary.LittleEndian.Uint32(b[0:4])),
		Time:        float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))),
	}, nil
}

// Frame decodes frame i
func (bf *BinaryFrames) Frame(i int) (Frame, error) {
	b, err := bf.body(i)
	if err != nil {
		return Frame{}, errors.WrapInvalid(err, "codec", "Frame", "locate frame")
	}
	return decodeBinaryFrame(b)
}

func decodeBinaryFrame(b []byte) (Frame, error) {
	frameNumber := int(binary.LittleEndian.Uint32(b[0:4]))
	t := float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])))
	agentCount := int(binary.LittleEndian.Uint32(b[8:12]))

	body := b[frameHeaderBytes:]
	if len(body)%4 != 0 {
		return Frame{}, errors.WrapParse(fmt.Errorf("agent data of %d bytes", len(body)),
			"codec", "decodeBinaryFrame", fmt.Sprintf("read frame %d", frameNumber))
	}
	values := make([]float64, len(body)/4)
	for i := range values {
		values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:])))
	}

	frame, err := DecodeFlatRecord(values, frameNumber, t)
	if err != nil {
		return Frame{}, err
	}
	if len(frame.Agents) != agentCount {
		return Frame{}, errors.WrapParse(
			fmt.Errorf("%w: declared %d, decoded %d", ErrAgentCount, agentCount, len(frame.Agents)),
			"codec", "decodeBinaryFrame", fmt.Sprintf("read frame %d", frameNumber))
	}
	return frame, nil
}

// DecodeBinaryFrames decodes every frame of a binary payload, failing on the
// first malformed frame.
func DecodeBinaryFrames(payload []byte) ([]Frame, error) {
	bf, err := ParseBinaryFrames(payload)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, 0, bf.NumFrames())
	for i := 0; i < bf.NumFrames(); i++ {
		f, err := bf.Frame(i)
		if err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// EncodeBinaryFrames writes frames in the binary spatial-data layout.
func EncodeBinaryFrames(frames []Frame) []byte {
	count := len(frames)
	indexEnd := 8 + 8*count
	total := indexEnd
	for _, f := range frames {
		total += f.Size()
	}

	out := make([]byte, total)
	binary.LittleEndian.PutUint32(out[0:], binaryFramesVersion)
	binary.LittleEndian.PutUint32(out[4:], uint32(count))

	pos := indexEnd
	for i, f := range frames {
		size := f.Size()
		binary.LittleEndian.PutUint32(out[8+4*i:], uint32(pos))
		binary.LittleEndian.PutUint32(out[8+4*count+4*i:], uint32(size))

		binary.LittleEndian.PutUint32(out[pos:], uint32(f.FrameNumber))
		binary.LittleEndian.PutUint32(out[pos+4:], math.Float32bits(float32(f.Time)))
		binary.LittleEndian.PutUint32(out[pos+8:], uint32(len(f.Agents)))
		p := pos + frameHeaderBytes
		for _, v := range EncodeFlatRecord(f.Agents) {
			binary.LittleEndian.PutUint32(out[p:], math.Float32bits(float32(v)))
			p += 4
		}
		pos += size
	}
	return out
}

// BundleFrame is one frame of a JSON visualization bundle.
type BundleFrame struct {
	FrameNumber int       `json:"frameNumber"`
	Time        float64   `json:"time"`
	Data        []float64 `json:"data"`
}

// VisDataBundle is the JSON form of a batch of frames, used both for the
// JSON spatial-data block and for text messages from a remote simulator.
type VisDataBundle struct {
	MsgType     int           `json:"msgType"`
	FileName    string        `json:"fileName,omitempty"`
	BundleStart int           `json:"bundleStart"`
	BundleSize  int           `json:"bundleSize"`
	BundleData  []BundleFrame `json:"bundleData"`
}

// BundleFrames is a FrameAccessor over JSON bundle frames.
type BundleFrames []BundleFrame

// NumFrames returns the number of frames in the bundle
func (b BundleFrames) NumFrames() int { return len(b) }

// Header returns frame number and time of frame i
func (b BundleFrames) Header(i int) (FrameHeader, error) {
	if i < 0 || i >= len(b) {
		return FrameHeader{}, errors.WrapInvalid(fmt.Errorf("frame index %d out of range [0,%d)", i, len(b)),
			"codec", "Header", "locate frame")
	}
	return FrameHeader{FrameNumber: b[i].FrameNumber, Time: b[i].Time}, nil
}

// Frame decodes frame i
func (b BundleFrames) Frame(i int) (Frame, error) {
	if i < 0 || i >= len(b) {
		return Frame{}, errors.WrapInvalid(fmt.Errorf("frame index %d out of range [0,%d)", i, len(b)),
			"codec", "Frame", "locate frame")
	}
	return DecodeFlatRecord(b[i].Data, b[i].FrameNumber, b[i].Time)
}
