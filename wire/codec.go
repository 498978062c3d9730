package wire

import (
	"encoding/binary"
	"math"
)

// EncodeHeader lays out a normal header: both `type` and `length` in
// network (big-endian) byte order.
func EncodeHeader(b []byte, h Header) {
	binary.BigEndian.PutUint32(b[0:4], uint32(h.Type))
	binary.BigEndian.PutUint32(b[4:8], uint32(h.Length))
}

// DecodeHeader decodes a normal (non-handshake) header.
func DecodeHeader(b []byte) Header {
	return Header{
		Type:   MsgType(int32(binary.BigEndian.Uint32(b[0:4]))),
		Length: int32(binary.BigEndian.Uint32(b[4:8])),
	}
}

// EncodeHandshakeHeader lays out the one header with mixed byte order: type
// in network order, but length (carrying the raw protocol version, 2 or 3)
// in host order. A peer auto-detects endianness by comparing the raw int32
// against 2/3 in its own byte order; this host is little-endian, so the
// length field is written little-endian here.
func EncodeHandshakeHeader(b []byte, version int32) {
	binary.BigEndian.PutUint32(b[0:4], uint32(Handshake))
	binary.LittleEndian.PutUint32(b[4:8], uint32(version))
}

// EncodeFloatTriples packs n*3 float32 values as raw little-endian bytes;
// floating-point payloads are never byte-swapped.
func EncodeFloatTriples(b []byte, triples [][3]float32) {
	off := 0
	for _, t := range triples {
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(t[0]))
		binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(t[1]))
		binary.LittleEndian.PutUint32(b[off+8:], math.Float32bits(t[2]))
		off += 12
	}
}

// DecodeFloatTriples is the inverse of EncodeFloatTriples.
func DecodeFloatTriples(b []byte, n int) [][3]float32 {
	out := make([][3]float32, n)
	off := 0
	for i := range out {
		out[i][0] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		out[i][1] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:]))
		out[i][2] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:]))
		off += 12
	}
	return out
}

// TimeBlock is the 24-byte TIME sub-block payload.
type TimeBlock struct {
	Dt          float64
	CurrentTime float64
	Step        uint64
}

const TimeBlockSize = 24

func EncodeTime(b []byte, t TimeBlock) {
	binary.LittleEndian.PutUint64(b[0:8], math.Float64bits(t.Dt))
	binary.LittleEndian.PutUint64(b[8:16], math.Float64bits(t.CurrentTime))
	binary.LittleEndian.PutUint64(b[16:24], t.Step)
}

func DecodeTime(b []byte) TimeBlock {
	return TimeBlock{
		Dt:          math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		CurrentTime: math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
		Step:        binary.LittleEndian.Uint64(b[16:24]),
	}
}

// BoxBlock is the 36-byte BOX sub-block: three box-edge vectors a, b, c,
// row-major, zero-upper-triangular.
type BoxBlock struct {
	A, B, C [3]float32
}

const BoxBlockSize = 36

func EncodeBox(b []byte, box BoxBlock) {
	vecs := [3][3]float32{box.A, box.B, box.C}
	off := 0
	for _, v := range vecs {
		for _, f := range v {
			binary.LittleEndian.PutUint32(b[off:], math.Float32bits(f))
			off += 4
		}
	}
}

func DecodeBox(b []byte) BoxBlock {
	var vecs [3][3]float32
	off := 0
	for i := range vecs {
		for j := range vecs[i] {
			vecs[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
			off += 4
		}
	}
	return BoxBlock{A: vecs[0], B: vecs[1], C: vecs[2]}
}

// SessionInfo is the v3 7-boolean negotiation block, in the fixed wire
// order {time, box, coords, wrap, velocities, forces, energies}.
type SessionInfo struct {
	Time        bool
	Box         bool
	Coords      bool
	Wrap        bool
	Velocities  bool
	Forces      bool
	Energies    bool
}

const SessionInfoSize = 7

func EncodeSessionInfo(b []byte, si SessionInfo) {
	bs := []bool{si.Time, si.Box, si.Coords, si.Wrap, si.Velocities, si.Forces, si.Energies}
	for i, v := range bs {
		if v {
			b[i] = 1
		} else {
			b[i] = 0
		}
	}
}

func DecodeSessionInfo(b []byte) SessionInfo {
	bs := make([]bool, SessionInfoSize)
	for i := range bs {
		bs[i] = b[i] != 0
	}
	return SessionInfo{
		Time: bs[0], Box: bs[1], Coords: bs[2], Wrap: bs[3],
		Velocities: bs[4], Forces: bs[5], Energies: bs[6],
	}
}

// MDCommForce is one (client index, force) triple of an MDCOMM message.
type MDCommForce struct {
	Index int32
	Force [3]float32
}

// EncodeMDComm lays out `length` int32 indices followed by `length`×3 float32
// forces. Indices are written big-endian, the network-order convention the
// viewer client expects.
func EncodeMDComm(b []byte, forces []MDCommForce) {
	n := len(forces)
	for i, f := range forces {
		binary.BigEndian.PutUint32(b[i*4:], uint32(f.Index))
	}
	triOff := n * 4
	for i, f := range forces {
		off := triOff + i*12
		binary.LittleEndian.PutUint32(b[off:], math.Float32bits(f.Force[0]))
		binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(f.Force[1]))
		binary.LittleEndian.PutUint32(b[off+8:], math.Float32bits(f.Force[2]))
	}
}

// DecodeMDComm parses `length` (index, force) records from an MDCOMM payload.
func DecodeMDComm(b []byte, length int) []MDCommForce {
	out := make([]MDCommForce, length)
	for i := range out {
		out[i].Index = int32(binary.BigEndian.Uint32(b[i*4:]))
	}
	triOff := length * 4
	for i := range out {
		off := triOff + i*12
		out[i].Force[0] = math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
		out[i].Force[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:]))
		out[i].Force[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:]))
	}
	return out
}

// MDCommWireSize returns the byte length of an MDCOMM payload for `length` records.
func MDCommWireSize(length int) int { return length*4 + length*12 }
