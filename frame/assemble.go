// Package frame assembles one outbound message buffer from the
// sub-blocks enabled by a session's negotiated configuration: time, box,
// coordinates, velocities, and forces, each framed by the wire codec's
// fixed 8-byte header.
package frame

import "github.com/ljwoods2/imdbridge/wire"

// Config mirrors the session's negotiated sub-block selection plus the
// coordinate count the session was built with.
type Config struct {
	Time, Box, Coords, Velocities, Forces bool
	NumCoords                             int
}

// Size computes the worst-case buffer size for cfg: the sum of every
// enabled block's header-plus-payload size.
func Size(cfg Config) int {
	n := 0
	if cfg.Time {
		n += wire.HeaderSize + wire.TimeBlockSize
	}
	if cfg.Box {
		n += wire.HeaderSize + wire.BoxBlockSize
	}
	if cfg.Coords {
		n += wire.HeaderSize + 12*cfg.NumCoords
	}
	if cfg.Velocities {
		n += wire.HeaderSize + 12*cfg.NumCoords
	}
	if cfg.Forces {
		n += wire.HeaderSize + 12*cfg.NumCoords
	}
	return n
}

// Assembler owns the single msgdata buffer, allocated once to Size(cfg)
// and reused for every frame for the lifetime of a session.
type Assembler struct {
	cfg Config
	buf []byte
}

// NewAssembler allocates msgdata sized for cfg.
func NewAssembler(cfg Config) *Assembler {
	return &Assembler{cfg: cfg, buf: make([]byte, Size(cfg))}
}

// Config returns the assembler's sub-block configuration.
func (a *Assembler) Config() Config { return a.cfg }

// Assemble writes every enabled sub-block into msgdata, in the fixed
// order {time, box, coords, velocities, forces}, and returns the filled
// prefix. Disabled blocks contribute nothing. coords/vel/force triples
// must already be in dense tag-index order and unwrapped if applicable;
// passing a nil slice for a disabled block is fine.
func (a *Assembler) Assemble(t wire.TimeBlock, box wire.BoxBlock, coords, vel, forces [][3]float32) []byte {
	off := 0
	if a.cfg.Time {
		wire.EncodeHeader(a.buf[off:], wire.Header{Type: wire.Time, Length: 1})
		off += wire.HeaderSize
		wire.EncodeTime(a.buf[off:], t)
		off += wire.TimeBlockSize
	}
	if a.cfg.Box {
		wire.EncodeHeader(a.buf[off:], wire.Header{Type: wire.Box, Length: 1})
		off += wire.HeaderSize
		wire.EncodeBox(a.buf[off:], box)
		off += wire.BoxBlockSize
	}
	if a.cfg.Coords {
		off += a.writeTriples(off, wire.FCoords, coords)
	}
	if a.cfg.Velocities {
		off += a.writeTriples(off, wire.Velocities, vel)
	}
	if a.cfg.Forces {
		off += a.writeTriples(off, wire.Forces, forces)
	}
	return a.buf[:off]
}

func (a *Assembler) writeTriples(off int, t wire.MsgType, triples [][3]float32) int {
	wire.EncodeHeader(a.buf[off:], wire.Header{Type: t, Length: int32(len(triples))})
	body := off + wire.HeaderSize
	wire.EncodeFloatTriples(a.buf[body:], triples)
	return wire.HeaderSize + 12*len(triples)
}
