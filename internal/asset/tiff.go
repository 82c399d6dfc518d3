package asset

import (
	"encoding/binary"
	"errors"
)

// ErrNotTIFF is returned when a header does not start with a TIFF or
// BigTIFF signature.
var ErrNotTIFF = errors.New("not a TIFF file")

// SniffSize is how many leading bytes SniffTIFF wants to see. The first IFD
// of a GeoTIFF normally sits right after the header.
const SniffSize = 64 << 10

const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagSamplesPerPixel = 277
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
)

// TIFFHeader is what can be learned from the first IFD without decoding
// pixel data.
type TIFFHeader struct {
	ByteOrder string
	BigTIFF   bool
	Width     uint64
	Height    uint64
	Samples   uint64
	// GeoKeys reports whether the GeoKeyDirectory tag is present.
	GeoKeys bool
	// Georeferenced reports whether pixel scale or tiepoint tags are present.
	Georeferenced bool
}

// SniffTIFF checks the TIFF signature in data and reads the first IFD when
// it lies inside data. A truncated IFD is not an error; the fields it would
// have filled stay zero.
func SniffTIFF(data []byte) (TIFFHeader, error) {
	if len(data) < 8 {
		return TIFFHeader{}, ErrNotTIFF
	}

	var h TIFFHeader
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return TIFFHeader{}, ErrNotTIFF
	}
	h.ByteOrder = string(data[:2])

	switch bo.Uint16(data[2:4]) {
	case 42:
		offset := uint64(bo.Uint32(data[4:8]))
		readIFD(data, bo, offset, false, &h)
	case 43:
		if len(data) < 16 || bo.Uint16(data[4:6]) != 8 {
			return TIFFHeader{}, ErrNotTIFF
		}
		h.BigTIFF = true
		offset := bo.Uint64(data[8:16])
		readIFD(data, bo, offset, true, &h)
	default:
		return TIFFHeader{}, ErrNotTIFF
	}
	return h, nil
}

func readIFD(data []byte, bo binary.ByteOrder, offset uint64, big bool, h *TIFFHeader) {
	countSize, entrySize := uint64(2), uint64(12)
	if big {
		countSize, entrySize = 8, 20
	}
	if offset+countSize > uint64(len(data)) {
		return
	}

	var numEntries uint64
	if big {
		numEntries = bo.Uint64(data[offset : offset+8])
	} else {
		numEntries = uint64(bo.Uint16(data[offset : offset+2]))
	}
	if numEntries > 500 {
		return // sanity check
	}

	for i := uint64(0); i < numEntries; i++ {
		entry := offset + countSize + i*entrySize
		if entry+entrySize > uint64(len(data)) {
			return
		}
		tag := bo.Uint16(data[entry : entry+2])
		dataType := bo.Uint16(data[entry+2 : entry+4])
		// Classic entries carry a 4-byte count, BigTIFF entries an 8-byte one.
		value := data[entry+8 : entry+12]
		if big {
			value = data[entry+12 : entry+20]
		}

		switch tag {
		case tagImageWidth:
			h.Width = inlineUint(bo, dataType, value)
		case tagImageLength:
			h.Height = inlineUint(bo, dataType, value)
		case tagSamplesPerPixel:
			h.Samples = inlineUint(bo, dataType, value)
		case tagGeoKeyDirectory:
			h.GeoKeys = true
		case tagModelPixelScale, tagModelTiepoint:
			h.Georeferenced = true
		}
	}
}

// inlineUint reads a single SHORT, LONG or LONG8 stored in the entry's
// value field.
func inlineUint(bo binary.ByteOrder, dataType uint16, value []byte) uint64 {
	switch dataType {
	case 3: // SHORT
		return uint64(bo.Uint16(value))
	case 4: // LONG
		return uint64(bo.Uint32(value))
	case 16: // LONG8
		if len(value) >= 8 {
			return bo.Uint64(value)
		}
	}
	return 0
}
