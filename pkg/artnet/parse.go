package artnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Frame is a parsed Art-Net DMX packet, holding only the fields the
// receive path needs.
type Frame struct {
	Universe Universe16
	Sequence byte
	Length   uint16
	Data     [DMXDataLength]byte
}

// ParseDMXPacket validates and decodes an Art-Net ArtDMX packet. It returns
// an error for any packet that is too short, carries the wrong ID, or
// advertises an opcode other than OpCodeDMX.
func ParseDMXPacket(buf []byte) (*Frame, error) {
	if len(buf) < 18 {
		return nil, fmt.Errorf("artnet: packet too short (%d bytes)", len(buf))
	}
	if !bytes.Equal(buf[0:8], ArtNetID) {
		return nil, fmt.Errorf("artnet: bad packet ID")
	}
	opcode := binary.LittleEndian.Uint16(buf[8:10])
	if opcode != OpCodeDMX {
		return nil, fmt.Errorf("artnet: unsupported opcode 0x%04x", opcode)
	}

	f := &Frame{
		Sequence: buf[12],
		Universe: Universe16(binary.LittleEndian.Uint16(buf[14:16])),
		Length:   binary.BigEndian.Uint16(buf[16:18]),
	}
	if f.Length > DMXDataLength {
		f.Length = DMXDataLength
	}
	end := 18 + int(f.Length)
	if end > len(buf) {
		end = len(buf)
	}
	copy(f.Data[:], buf[18:end])
	return f, nil
}
