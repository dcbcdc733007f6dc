// Package wipp implements the WIPPv1 transfer protocol byte layouts for the
// Womble Industries Optical Controller: outbound strip configuration and
// pixel frame encoding, and inbound sensor group decoding. Integers are
// little-endian on the wire. The package does no I/O.
package wipp

import (
	"encoding/binary"
	"fmt"
)

// Vendor control request codes understood by the WIOC firmware. Requests are
// addressed to the interface (bmRequestType = vendor | interface recipient),
// with wIndex carrying the interface number.
const (
	ReqConfigStrip = 0x01
	ReqStart       = 0x13
	ReqPeriod      = 0x14
	ReqStop        = 0x15
	ReqRestValue   = 0x16
)

const (
	// InitSize is the payload length of a ReqConfigStrip request.
	InitSize = 4
	// GroupSize is the length of one inbound sensor group.
	GroupSize = 3
	// BytesPerPixel is the per-pixel payload width in a stream frame.
	BytesPerPixel = 3
)

// EncodeInit builds the ReqConfigStrip payload configuring one sub-unit:
// unit index, enable flag, and pixel count (u16le).
func EncodeInit(unit uint8, enabled bool, pixelCount uint16) []byte {
	buf := make([]byte, InitSize)
	buf[0] = unit
	if enabled {
		buf[1] = 1
	}
	binary.LittleEndian.PutUint16(buf[2:4], pixelCount)
	return buf
}

// DecodeInit is the inverse of EncodeInit.
func DecodeInit(buf []byte) (unit uint8, enabled bool, pixelCount uint16, err error) {
	if len(buf) != InitSize {
		return 0, false, 0, fmt.Errorf("init payload must be %d bytes, got %d", InitSize, len(buf))
	}
	return buf[0], buf[1] != 0, binary.LittleEndian.Uint16(buf[2:4]), nil
}

// EncodeStreamFrame builds one outbound pixel frame: a sub-unit index byte
// followed by pixelCount*3 bytes all set to fill.
func EncodeStreamFrame(subUnit uint8, fill uint8, pixelCount uint16) []byte {
	buf := make([]byte, 1+int(pixelCount)*BytesPerPixel)
	buf[0] = subUnit
	for i := 1; i < len(buf); i++ {
		buf[i] = fill
	}
	return buf
}

// EncodePeriod builds the ReqPeriod payload (sampling period, u32le).
func EncodePeriod(period uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, period)
	return buf
}

// Reading is one decoded sensor group.
type Reading struct {
	Magnitude uint16
	Valid     bool
}

// EncodeSensorGroup builds the 3-byte wire form of a reading. The firmware
// produces these; the host-side encoder exists for round-trip checks and
// loopback fixtures.
func EncodeSensorGroup(magnitude uint16, valid bool) []byte {
	buf := make([]byte, GroupSize)
	binary.LittleEndian.PutUint16(buf[0:2], magnitude)
	if valid {
		buf[2] = 1
	}
	return buf
}

// DecodeSensorGroup decodes one 3-byte group into (magnitude, validity).
func DecodeSensorGroup(buf []byte) (magnitude uint16, valid bool, err error) {
	if len(buf) != GroupSize {
		return 0, false, fmt.Errorf("sensor group must be %d bytes, got %d", GroupSize, len(buf))
	}
	return binary.LittleEndian.Uint16(buf[0:2]), buf[2] != 0, nil
}

// DecodeSensorBuffer splits an inbound transfer buffer into readings.
// A trailing partial group is discarded.
func DecodeSensorBuffer(buf []byte) []Reading {
	out := make([]Reading, 0, len(buf)/GroupSize)
	for len(buf) >= GroupSize {
		mag, valid, _ := DecodeSensorGroup(buf[:GroupSize])
		out = append(out, Reading{Magnitude: mag, Valid: valid})
		buf = buf[GroupSize:]
	}
	return out
}
