// Package bridge wires the wire codec, socket endpoint, tag index,
// collective communicator, session state machine, frame assembler,
// steering applier, and optional async writer together behind the three
// entry points a host integrator calls: Setup, PostForce, and EndOfStep.
package bridge

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/ljwoods2/imdbridge/asyncio"
	"github.com/ljwoods2/imdbridge/cmn/cos"
	"github.com/ljwoods2/imdbridge/cmn/nlog"
	"github.com/ljwoods2/imdbridge/collective"
	"github.com/ljwoods2/imdbridge/frame"
	"github.com/ljwoods2/imdbridge/session"
	"github.com/ljwoods2/imdbridge/sock"
	"github.com/ljwoods2/imdbridge/steer"
	"github.com/ljwoods2/imdbridge/tagindex"
	"github.com/ljwoods2/imdbridge/wire"
)

// Bridge is one instance of the IMD bridge, owned and driven by a host
// integrator across its three lifecycle calls.
type Bridge struct {
	opts Options
	comm collective.Comm

	listener *sock.Endpoint
	client   *sock.Endpoint

	sess *session.Machine

	idmap    *tagindex.Map
	revIdmap []int64
	numCoords int

	localIdx *steer.LocalIndex

	asm    *frame.Assembler
	writer *asyncio.Writer

	step int64

	// recvForceBuf is the bridge-owned steering force buffer (spec's
	// recv_force_buf): replaced wholesale on each MDCOMM, cleared on
	// disconnect, and otherwise reapplied every PostForce call — the host
	// resets its own force array to zero between steps, so this is how a
	// steering force survives until the client sends a new one.
	recvForceBuf []wire.MDCommForce
}

// New validates opts and, on rank 0, opens the listening socket. Every
// other entry point is a no-op on non-root ranks except where the
// per-rank gather/scatter and steering application require their
// participation.
func New(opts Options, comm collective.Comm) (*Bridge, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	b := &Bridge{
		opts: opts,
		comm: comm,
		sess: session.New(opts.Version, opts.Trate),
	}
	if comm.Rank() == 0 {
		ln, err := sock.Listen(opts.Port)
		if err != nil {
			return nil, cos.NewErrTerminate("bind error", err)
		}
		b.listener = ln
	}
	return b, nil
}

// Setup builds the tag index, builds this rank's local steering lookup
// table, and — on rank 0 — accepts the first client and completes the
// handshake.
func (b *Bridge) Setup(view ParticleView) error {
	var localTags []int64
	for i := 0; i < view.NumLocal(); i++ {
		if view.InGroup(i) {
			localTags = append(localTags, view.Tag(i))
		}
	}
	allTags, err := collective.GatherTags(b.comm, localTags)
	if err != nil {
		return err
	}

	if b.comm.Rank() == 0 {
		b.idmap, b.revIdmap = tagindex.Build(allTags)
		b.numCoords = len(b.revIdmap)
		b.asm = frame.NewAssembler(frame.Config{
			Time:       b.opts.Version == wire.V3 && b.opts.Time,
			Box:        b.opts.Version == wire.V3 && b.opts.Box,
			Coords:     b.opts.Coordinates,
			Velocities: b.opts.Version == wire.V3 && b.opts.Velocities,
			Forces:     b.opts.Version == wire.V3 && b.opts.Forces,
			NumCoords:  b.numCoords,
		})
	}

	b.localIdx = steer.BuildLocalIndex(view.NumLocal(), view.Tag, view.InGroup)

	if b.comm.Rank() != 0 {
		return nil
	}

	nlog.Infof("imdbridge: listening for a client (instance %d, group %d)", b.opts.InstanceID, b.opts.GroupID)
	if err := b.acceptClient(); err != nil {
		b.sess.OnHandshakeFail()
		return err
	}
	if err := b.handshake(); err != nil {
		b.sess.OnHandshakeFail()
		return err
	}
	return nil
}

func (b *Bridge) acceptClient() error {
	if b.opts.NoWait {
		client, ok, err := b.listener.SelAccept(0)
		if err != nil {
			return err
		}
		if !ok {
			b.sess.OnNoClient()
			return nil
		}
		b.client = client
		b.sess.OnAccept()
		return nil
	}
	for {
		client, ok, err := b.listener.SelAccept(60 * time.Second)
		if err != nil {
			return err
		}
		if ok {
			b.client = client
			b.sess.OnAccept()
			return nil
		}
	}
}

func (b *Bridge) handshake() error {
	if b.client == nil {
		return nil
	}
	hdr := make([]byte, wire.HeaderSize)
	wire.EncodeHandshakeHeader(hdr, b.opts.Version)
	if _, err := b.client.Write(hdr); err != nil {
		return err
	}

	if b.opts.Version == wire.V3 {
		si := b.opts.SessionInfo()
		siHdr := make([]byte, wire.HeaderSize)
		wire.EncodeHeader(siHdr, wire.Header{Type: wire.SessionInfoMsg, Length: wire.SessionInfoSize})
		if _, err := b.client.Write(siHdr); err != nil {
			return err
		}
		body := make([]byte, wire.SessionInfoSize)
		wire.EncodeSessionInfo(body, si)
		if _, err := b.client.Write(body); err != nil {
			return err
		}
	}

	goHdr := make([]byte, wire.HeaderSize)
	if _, err := b.client.Read(goHdr); err != nil {
		return err
	}
	h := wire.DecodeHeader(goHdr)
	if h.Type != wire.Go {
		return errors.Errorf("imdbridge: expected GO, got %v", h.Type)
	}
	b.sess.OnHandshakeOK(b.opts.SessionInfo())

	if b.opts.AsyncWrite {
		client := b.client
		b.writer = asyncio.NewWriter(
			func(buf []byte) error { _, err := client.Write(buf); return err },
			func() (bool, error) { return client.SelWrite(0) },
		)
		b.writer.Start()
	}
	return nil
}

// update is rank 0's per-tick decision, broadcast to every rank so the
// collective calls that follow (steering application, frame gather) stay
// in lock-step without every rank touching the client socket.
type update struct {
	Terminate  bool
	Disconnect bool
	Paused     bool
	Trate      int32
	Forces     []wire.MDCommForce
}

func encodeUpdate(u update) []byte {
	b := make([]byte, 11+wire.MDCommWireSize(len(u.Forces)))
	if u.Terminate {
		b[0] = 1
	}
	if u.Disconnect {
		b[1] = 1
	}
	if u.Paused {
		b[10] = 1
	}
	binary.BigEndian.PutUint32(b[2:6], uint32(u.Trate))
	binary.BigEndian.PutUint32(b[6:10], uint32(len(u.Forces)))
	wire.EncodeMDComm(b[11:], u.Forces)
	return b
}

func decodeUpdate(b []byte) update {
	n := int(binary.BigEndian.Uint32(b[6:10]))
	return update{
		Terminate:  b[0] != 0,
		Disconnect: b[1] != 0,
		Paused:     b[10] != 0,
		Trate:      int32(binary.BigEndian.Uint32(b[2:6])),
		Forces:     wire.DecodeMDComm(b[11:], n),
	}
}

func (b *Bridge) dropClient() {
	if b.client != nil {
		b.client.Destroy()
		b.client = nil
	}
}

// drainClientOnRoot reads every pending client message without blocking
// and folds it into one decision to broadcast. An MDCOMM replaces
// b.recvForceBuf wholesale (spec's recv_force_buf); the returned update
// always carries the buffer's *current* contents, whether or not this
// particular drain saw a fresh MDCOMM, so steering persists across steps
// until the client sends a new one or disconnects.
func (b *Bridge) drainClientOnRoot() update {
	u := update{Trate: b.sess.Trate()}
	if b.client == nil {
		u.Forces = b.recvForceBuf
		u.Paused = b.sess.State() == session.Paused
		return u
	}
	for {
		ready, err := b.client.SelRead(0)
		if err != nil || !ready {
			u.Forces = b.recvForceBuf
			u.Paused = b.sess.State() == session.Paused
			return u
		}
		hdrBuf := make([]byte, wire.HeaderSize)
		if _, err := b.client.Read(hdrBuf); err != nil {
			nlog.Warningf("imdbridge: client read error: %v", err)
			b.dropClient()
			b.recvForceBuf = nil
			u.Disconnect = true
			return u
		}
		hdr := wire.DecodeHeader(hdrBuf)
		if hdr.Type == wire.MDComm {
			body := make([]byte, wire.MDCommWireSize(int(hdr.Length)))
			if _, err := b.client.Read(body); err != nil {
				b.dropClient()
				b.recvForceBuf = nil
				u.Disconnect = true
				return u
			}
			b.recvForceBuf = wire.DecodeMDComm(body, int(hdr.Length))
		}
		switch b.sess.OnMessage(hdr.Type, hdr.Length) {
		case session.ActionDisconnect:
			b.dropClient()
			b.recvForceBuf = nil
			u.Disconnect = true
			return u
		case session.ActionKill:
			u.Terminate = true
			u.Forces = b.recvForceBuf
			return u
		}
		u.Trate = b.sess.Trate()
	}
}

// PostForce drains pending client messages, applies any steering forces
// received, and — for v2 — runs the combined emission path.
func (b *Bridge) PostForce(view ParticleView) error {
	var u update
	if b.comm.Rank() == 0 {
		u = b.drainClientOnRoot()
	}
	raw, err := b.comm.Bcast(0, encodeUpdate(u))
	if err != nil {
		return err
	}
	if b.comm.Rank() != 0 {
		u = decodeUpdate(raw)
	}

	// While paused, force accumulation from prior MDCOMMs is not
	// repeated: the client can still steer (the drain above records a
	// fresh MDCOMM into recvForceBuf), but it only takes effect once the
	// session resumes.
	if !u.Paused && len(u.Forces) > 0 {
		steer.Apply(b.localIdx, u.Forces, b.revIdmap, b.opts.Fscale, view)
	}
	if u.Terminate {
		return cos.NewErrTerminate("client issued KILL", nil)
	}

	if b.opts.Version == wire.V2 {
		b.step++
		return b.maybeEmit(view, b.step)
	}
	return nil
}

// EndOfStep runs the v3 emission path every trate steps: Options.Trate
// at first, then whatever rate the client last set with a TRATE message.
func (b *Bridge) EndOfStep(view ParticleView) error {
	if b.opts.Version != wire.V3 {
		return nil
	}
	b.step++
	return b.maybeEmit(view, b.step)
}

// Destroy shuts down the async writer (if running) and closes both
// sockets. Called once at host shutdown.
func (b *Bridge) Destroy() {
	if b.writer != nil {
		b.writer.Shutdown()
	}
	b.dropClient()
	if b.listener != nil {
		b.listener.Destroy()
	}
}

// PostForceRespa invokes PostForce only at the outermost RESPA sub-step.
func (b *Bridge) PostForceRespa(view ParticleView, outermost bool) error {
	if !outermost {
		return nil
	}
	return b.PostForce(view)
}

func (b *Bridge) maybeEmit(view ParticleView, step int64) error {
	var emit bool
	if b.comm.Rank() == 0 {
		emit = b.sess.ShouldEmit(step)
	}
	raw, err := b.comm.Bcast(0, boolByte(emit))
	if err != nil {
		return err
	}
	if !fromBoolByte(raw) {
		return nil
	}
	return b.emitFrame(view)
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func fromBoolByte(b []byte) bool { return len(b) > 0 && b[0] != 0 }

func (b *Bridge) localRecords(view ParticleView, vec func(i int) [3]float64) []collective.Record {
	var out []collective.Record
	for i := 0; i < view.NumLocal(); i++ {
		if !view.InGroup(i) {
			continue
		}
		v := vec(i)
		out = append(out, collective.Record{
			Tag: view.Tag(i),
			V:   [3]float32{float32(v[0]), float32(v[1]), float32(v[2])},
		})
	}
	return out
}

func (b *Bridge) emitFrame(view ParticleView) error {
	wantCoords := b.opts.Coordinates
	wantVel := b.opts.Version == wire.V3 && b.opts.Velocities
	wantForces := b.opts.Version == wire.V3 && b.opts.Forces

	var coordRecs, velRecs, forceRecs []collective.Record
	if wantCoords {
		coordRecs = b.localRecords(view, func(i int) [3]float64 {
			pos := view.Position(i)
			if b.opts.Unwrap {
				return frame.Unwrap(pos, view.Image(i), view.Domain())
			}
			return pos
		})
	}
	if wantVel {
		velRecs = b.localRecords(view, view.Velocity)
	}
	if wantForces {
		forceRecs = b.localRecords(view, view.Force)
	}

	gCoords, err := collective.GatherRecords(b.comm, coordRecs)
	if err != nil {
		return err
	}
	gVel, err := collective.GatherRecords(b.comm, velRecs)
	if err != nil {
		return err
	}
	gForces, err := collective.GatherRecords(b.comm, forceRecs)
	if err != nil {
		return err
	}

	if b.comm.Rank() != 0 {
		return nil
	}

	coordsOut := make([][3]float32, b.numCoords)
	velOut := make([][3]float32, b.numCoords)
	forcesOut := make([][3]float32, b.numCoords)
	if wantCoords {
		collective.ScatterToFrame(gCoords, coordsOut, b.idmap.Lookup)
	}
	if wantVel {
		collective.ScatterToFrame(gVel, velOut, b.idmap.Lookup)
	}
	if wantForces {
		collective.ScatterToFrame(gForces, forcesOut, b.idmap.Lookup)
	}

	t := wire.TimeBlock{
		Dt:          view.Dt(),
		CurrentTime: view.CurrentTime(),
		Step:        view.Step(),
	}
	d := view.Domain()
	box := wire.BoxBlock{
		A: [3]float32{float32(d.Xprd), 0, 0},
		B: [3]float32{float32(d.Xy), float32(d.Yprd), 0},
		C: [3]float32{float32(d.Xz), float32(d.Yz), float32(d.Zprd)},
	}

	buf := b.asm.Assemble(t, box, coordsOut, velOut, forcesOut)
	if b.client == nil {
		return nil
	}
	if b.writer != nil {
		b.writer.Submit(buf)
		return nil
	}
	_, err = b.client.Write(buf)
	return err
}
