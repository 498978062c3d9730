// Package wire implements a fixed-header-then-typed-payload codec: an
// 8-byte header (int32 type, int32 length) followed by a payload whose
// layout is determined by the message type.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import "fmt"

// MsgType is one of the 16 wire message types.
type MsgType int32

const (
	Disconnect  MsgType = 0
	Energies    MsgType = 1
	FCoords     MsgType = 2
	Go          MsgType = 3
	Handshake   MsgType = 4
	Kill        MsgType = 5
	MDComm      MsgType = 6
	Pause       MsgType = 7
	Trate       MsgType = 8
	IOErr       MsgType = 9 // synthetic: never sent on the wire; package sock reports stream errors as sock.ErrIOError
	SessionInfoMsg MsgType = 10 // the SESSIONINFO message type; the payload is the SessionInfo struct
	Resume      MsgType = 11
	Time        MsgType = 12
	Box         MsgType = 13
	Velocities  MsgType = 14
	Forces      MsgType = 15
)

func (t MsgType) String() string {
	switch t {
	case Disconnect:
		return "DISCONNECT"
	case Energies:
		return "ENERGIES"
	case FCoords:
		return "FCOORDS"
	case Go:
		return "GO"
	case Handshake:
		return "HANDSHAKE"
	case Kill:
		return "KILL"
	case MDComm:
		return "MDCOMM"
	case Pause:
		return "PAUSE"
	case Trate:
		return "TRATE"
	case IOErr:
		return "IOERROR"
	case SessionInfoMsg:
		return "SESSIONINFO"
	case Resume:
		return "RESUME"
	case Time:
		return "TIME"
	case Box:
		return "BOX"
	case Velocities:
		return "VELOCITIES"
	case Forces:
		return "FORCES"
	default:
		return fmt.Sprintf("MsgType(%d)", int32(t))
	}
}

// HeaderSize is the fixed 8-byte header: int32 type + int32 length.
const HeaderSize = 8

// Header is the decoded form of the 8-byte frame header. Length's meaning
// is message-type-dependent: a count of elements, a protocol version, or
// unused, depending on Type.
type Header struct {
	Type   MsgType
	Length int32
}

// ProtocolVersion negotiable values.
const (
	V2 = 2
	V3 = 3
)
