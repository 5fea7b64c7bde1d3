// Package sacn builds, parses, and transmits sACN (E1.31) DMX-over-UDP packets.
package sacn

import (
	"encoding/binary"
	"fmt"
)

const (
	// Port is the standard sACN UDP port.
	Port = 5568
	// DMXDataLength is the number of DMX channels per universe (channel 0 is the start code).
	DMXDataLength = 513
	// rootVector identifies the E1.31 data root layer.
	rootVector = 0x00000004
	// framingVector identifies the DMP framing layer used for data packets.
	framingVector = 0x00000002
	// dmpVector identifies the set-property DMP layer.
	dmpVector = 0x02
)

// Packet is one sACN E1.31 data packet: root layer, framing layer, DMP layer.
type Packet struct {
	CID             [16]byte
	SourceName      string // up to 63 bytes, null terminated
	Priority        byte   // 0-200, default 100
	Sequence        byte
	StreamTerminated bool
	Universe        uint16
	Data            [DMXDataLength]byte // Data[0] is the DMX start code (0x00)
}

// NewPacket returns a Packet with sane defaults (priority 100, start code 0).
func NewPacket(cid [16]byte, sourceName string, universe uint16) *Packet {
	p := &Packet{
		CID:        cid,
		SourceName: sourceName,
		Priority:   100,
		Universe:   universe,
	}
	return p
}

// SetDMX copies up to 512 channel values into the packet, leaving Data[0]
// (the start code) at zero.
func (p *Packet) SetDMX(channels []byte) {
	n := len(channels)
	if n > 512 {
		n = 512
	}
	copy(p.Data[1:1+n], channels[:n])
}

// Bytes serializes the packet into its wire representation.
func (p *Packet) Bytes() []byte {
	const rootLen = 38
	const framingLen = 77
	const dmpLen = 10
	total := rootLen + framingLen + dmpLen + DMXDataLength
	buf := make([]byte, total)

	// --- Root Layer ---
	binary.BigEndian.PutUint16(buf[0:2], 0x0010)                    // preamble size
	binary.BigEndian.PutUint16(buf[2:4], 0x0000)                    // postamble size
	copy(buf[4:16], []byte("ASC-E1.17\x00\x00\x00"))                // ACN packet identifier
	binary.BigEndian.PutUint16(buf[16:18], flagsAndLength(total-16))
	binary.BigEndian.PutUint32(buf[18:22], rootVector)
	copy(buf[22:38], p.CID[:])

	// --- Framing Layer ---
	off := 38
	binary.BigEndian.PutUint16(buf[off:off+2], flagsAndLength(total-off))
	binary.BigEndian.PutUint32(buf[off+2:off+6], framingVector)
	nameBytes := make([]byte, 64)
	copy(nameBytes, []byte(p.SourceName))
	copy(buf[off+6:off+70], nameBytes)
	buf[off+70] = p.Priority
	binary.BigEndian.PutUint16(buf[off+71:off+73], 0) // sync address (unused)
	buf[off+73] = p.Sequence
	options := byte(0)
	if p.StreamTerminated {
		options |= 0x40
	}
	buf[off+74] = options
	binary.BigEndian.PutUint16(buf[off+75:off+77], p.Universe)

	// --- DMP Layer ---
	off += 77
	binary.BigEndian.PutUint16(buf[off:off+2], flagsAndLength(total-off))
	buf[off+2] = dmpVector
	buf[off+3] = 0xa1 // address type & data type
	binary.BigEndian.PutUint16(buf[off+4:off+6], 0x0000) // first property address
	binary.BigEndian.PutUint16(buf[off+6:off+8], 0x0001) // address increment
	binary.BigEndian.PutUint16(buf[off+8:off+10], uint16(DMXDataLength))

	off += dmpLen
	copy(buf[off:], p.Data[:])

	return buf
}

// flagsAndLength packs the low-12-bit length with the fixed 0x7 flag nibble
// used throughout the ACN PDU family.
func flagsAndLength(length int) uint16 {
	return uint16(0x7000 | (length & 0x0FFF))
}

// ParsePacket decodes an sACN data packet, validating the root and framing
// vectors and the ACN packet identifier.
func ParsePacket(buf []byte) (*Packet, error) {
	if len(buf) < 126 {
		return nil, fmt.Errorf("sacn: packet too short (%d bytes)", len(buf))
	}
	if string(buf[4:16]) != "ASC-E1.17\x00\x00\x00" {
		return nil, fmt.Errorf("sacn: bad ACN packet identifier")
	}
	rootVec := binary.BigEndian.Uint32(buf[18:22])
	if rootVec != rootVector {
		return nil, fmt.Errorf("sacn: unsupported root vector 0x%08x", rootVec)
	}

	p := &Packet{}
	copy(p.CID[:], buf[22:38])

	off := 38
	framingVec := binary.BigEndian.Uint32(buf[off+2 : off+6])
	if framingVec != framingVector {
		return nil, fmt.Errorf("sacn: unsupported framing vector 0x%08x", framingVec)
	}
	p.SourceName = nullTerminatedString(buf[off+6 : off+70])
	p.Priority = buf[off+70]
	p.Sequence = buf[off+73]
	p.StreamTerminated = buf[off+74]&0x40 != 0
	p.Universe = binary.BigEndian.Uint16(buf[off+75 : off+77])

	off += 77 + 10
	n := len(buf) - off
	if n > DMXDataLength {
		n = DMXDataLength
	}
	if n > 0 {
		copy(p.Data[:n], buf[off:off+n])
	}
	return p, nil
}

func nullTerminatedString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
