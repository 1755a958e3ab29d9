package driver

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/biosync/internal/errors"
)

// FrameSize is the encoded size of one sample frame:
// [seq uint32][sensor uint16][value float64], little endian.
const FrameSize = 4 + 2 + 8

// ErrFrameCorrupt is returned for frames that cannot belong to the device.
var ErrFrameCorrupt = errors.Newf("corrupt sample frame").
	Component("driver").
	Category(errors.CategoryAcquisition).
	Build()

// Frame is one sample on the wire.
type Frame struct {
	Seq    uint32 // per sensor sequence number
	Sensor uint16 // hardware channel
	Value  float64
}

// AppendFrame encodes f onto b.
func AppendFrame(b []byte, f Frame) []byte {
	b = binary.LittleEndian.AppendUint32(b, f.Seq)
	b = binary.LittleEndian.AppendUint16(b, f.Sensor)
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(f.Value))
}

// DecodeFrame decodes the frame at the start of b.
func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, errors.New(ErrFrameCorrupt).
			Component("driver").
			Category(errors.CategoryAcquisition).
			Context("length", len(b)).
			Build()
	}
	return Frame{
		Seq:    binary.LittleEndian.Uint32(b[0:4]),
		Sensor: binary.LittleEndian.Uint16(b[4:6]),
		Value:  math.Float64frombits(binary.LittleEndian.Uint64(b[6:14])),
	}, nil
}
