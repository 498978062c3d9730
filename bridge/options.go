package bridge

import (
	"github.com/pkg/errors"

	"github.com/ljwoods2/imdbridge/cmn/cos"
	"github.com/ljwoods2/imdbridge/wire"
)

// Options is the host-script configuration surface: required instance
// identity plus the optional on/off switches a host script may pass.
type Options struct {
	InstanceID int
	GroupID    int
	Port       int

	Unwrap bool
	NoWait bool
	Fscale float64
	Trate  int32

	// AsyncWrite runs frame delivery on a background writer (C8) instead
	// of writing synchronously from the calling host thread.
	AsyncWrite bool

	Version int32

	Time        bool
	Box         bool
	Coordinates bool
	Velocities  bool
	Forces      bool
}

// DefaultOptions returns the documented defaults: fscale 1.0, trate 1,
// protocol v2, every v3 sub-block on.
func DefaultOptions() Options {
	return Options{
		Fscale:      1.0,
		Trate:       1,
		Version:     wire.V2,
		Time:        true,
		Box:         true,
		Coordinates: true,
		Velocities:  true,
		Forces:      true,
	}
}

// Validate checks the constraints the host-script surface requires,
// aggregating every violation rather than stopping at the first.
func (o Options) Validate() error {
	var errs cos.Errs
	if o.Port < 1024 {
		errs.Add(errors.Errorf("port %d: must be >= 1024", o.Port))
	}
	if o.Trate < 1 {
		errs.Add(errors.Errorf("trate %d: must be >= 1", o.Trate))
	}
	if o.Version != wire.V2 && o.Version != wire.V3 {
		errs.Add(errors.Errorf("version %d: must be 2 or 3", o.Version))
	}
	if errs.Cnt() > 0 {
		_, err := errs.JoinErr()
		return err
	}
	return nil
}

// SessionInfo is the negotiated v3 sub-block selection derived from
// Options; for v2 every client always receives coordinates only.
func (o Options) SessionInfo() wire.SessionInfo {
	return wire.SessionInfo{
		Time:       o.Time,
		Box:        o.Box,
		Coords:     o.Coordinates,
		Wrap:       !o.Unwrap,
		Velocities: o.Velocities,
		Forces:     o.Forces,
	}
}
