// Package main is a standalone driver that exercises the imdbridge library
// end-to-end: an in-process two-rank simulated MD host (using
// collective.LocalComm) paired with a loopback TCP client that performs the
// handshake, steers one particle, and reports the frames it receives.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"net"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/ljwoods2/imdbridge/bridge"
	"github.com/ljwoods2/imdbridge/cmn/cos"
	"github.com/ljwoods2/imdbridge/cmn/nlog"
	"github.com/ljwoods2/imdbridge/collective"
	"github.com/ljwoods2/imdbridge/wire"
)

var (
	port    int
	steps   int
	trate   int
	version int
)

func init() {
	flag.IntVar(&port, "port", 9999, "IMD listen port")
	flag.IntVar(&steps, "steps", 12, "number of simulated MD steps to run")
	flag.IntVar(&trate, "trate", 3, "frame emission period, in steps")
	flag.IntVar(&version, "version", wire.V3, "IMD protocol version (2 or 3)")
}

// summary is the jsoniter-encoded status report printed at the end of the
// run, mirroring the teacher's use of jsoniter for hot-path (de)serialization
// of diagnostic blobs rather than encoding/json.
type summary struct {
	Steps          int     `json:"steps"`
	FramesReceived int     `json:"frames_received"`
	SteeredTag     int64   `json:"steered_tag"`
	SteeredForce   [3]float32 `json:"steered_force"`
	FinalForceOnTag [3]float64 `json:"final_force_on_steered_tag"`
}

func main() {
	flag.Parse()

	opts := bridge.DefaultOptions()
	opts.Port = port
	opts.Trate = int32(trate)
	opts.Version = int32(version)
	opts.InstanceID, opts.GroupID = 0, 0
	if err := opts.Validate(); err != nil {
		cos.ExitLogf("invalid options: %v", err)
	}

	comm := collective.NewLocalGroup(2)
	rank0 := newSimView([]int64{2, 4, 6, 8})
	rank1 := newSimView([]int64{1, 3, 5, 7, 9})

	b0, err := bridge.New(opts, comm[0])
	if err != nil {
		cos.ExitLogf("rank 0: %v", err)
	}
	b1, err := bridge.New(opts, comm[1])
	if err != nil {
		cos.ExitLogf("rank 1: %v", err)
	}

	clientDone := make(chan summary, 1)
	go runClient(port, opts.Version, clientDone)

	setupErr := make(chan error, 2)
	go func() { setupErr <- b1.Setup(rank1) }()
	go func() {
		nlog.Infof("imdbridge-demo: rank 0 awaiting client on port %d", port)
		setupErr <- b0.Setup(rank0)
	}()
	for i := 0; i < 2; i++ {
		if err := <-setupErr; err != nil {
			cos.ExitLogf("setup: %v", err)
		}
	}
	nlog.Infof("imdbridge-demo: handshake complete, running %d steps", steps)

	goChan := make(chan struct{})
	doneChan := make(chan struct{})
	go func() {
		for s := 0; s < steps; s++ {
			<-goChan
			runStep(b1, rank1, opts.Version, trate, s)
			doneChan <- struct{}{}
		}
	}()
	for s := 0; s < steps; s++ {
		goChan <- struct{}{}
		runStep(b0, rank0, opts.Version, trate, s)
		<-doneChan
	}

	b0.Destroy()
	b1.Destroy()

	select {
	case sum := <-clientDone:
		sum.Steps = steps
		sum.FinalForceOnTag = rank0.force[1] // tag 4, steered by the demo client
		out, _ := jsoniter.MarshalIndent(sum, "", "  ")
		fmt.Println(string(out))
	case <-time.After(5 * time.Second):
		nlog.Warningf("imdbridge-demo: client never reported a summary")
	}
}

func runStep(b *bridge.Bridge, view *simView, version int32, trate, step int) error {
	view.step = uint64(step)
	if err := b.PostForce(view); err != nil {
		return err
	}
	if version == wire.V3 {
		return b.EndOfStep(view)
	}
	return nil
}

// runClient is the stand-in for the external viewer client: it dials rank
// 0's listening port, performs the handshake, steers one particle a few
// steps in, and counts the frames it receives until the server hangs up.
func runClient(port int, version int32, done chan<- summary) {
	conn, err := dialRetry(port)
	if err != nil {
		nlog.Errorf("imdbridge-demo client: dial: %v", err)
		done <- summary{}
		return
	}
	defer conn.Close()

	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(conn, hdr); err != nil {
		nlog.Errorf("imdbridge-demo client: handshake read: %v", err)
		done <- summary{}
		return
	}
	h := wire.DecodeHeader(hdr)
	if h.Type != wire.Handshake {
		nlog.Errorf("imdbridge-demo client: expected HANDSHAKE, got %v", h.Type)
		done <- summary{}
		return
	}
	if version == wire.V3 {
		siHdr := make([]byte, wire.HeaderSize)
		readFull(conn, siHdr)
		siBody := make([]byte, wire.SessionInfoSize)
		readFull(conn, siBody)
	}
	goHdr := make([]byte, wire.HeaderSize)
	wire.EncodeHeader(goHdr, wire.Header{Type: wire.Go})
	conn.Write(goHdr)

	// steer particle tag 4 (client index 3 in the sorted tag set
	// {1,2,...,9}) with a small force a couple of frames in.
	steered := wire.MDCommForce{Index: 3, Force: [3]float32{0.5, -0.25, 1.0}}
	steerSent := false

	sum := summary{SteeredTag: 4, SteeredForce: steered.Force}
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		fHdr := make([]byte, wire.HeaderSize)
		if _, err := readFull(conn, fHdr); err != nil {
			if !steerSent {
				mdHdr := make([]byte, wire.HeaderSize)
				wire.EncodeHeader(mdHdr, wire.Header{Type: wire.MDComm, Length: 1})
				conn.Write(mdHdr)
				body := make([]byte, wire.MDCommWireSize(1))
				wire.EncodeMDComm(body, []wire.MDCommForce{steered})
				conn.Write(body)
				steerSent = true
			}
			continue
		}
		fh := wire.DecodeHeader(fHdr)
		switch fh.Type {
		case wire.Time:
			readFull(conn, make([]byte, wire.TimeBlockSize))
		case wire.Box:
			readFull(conn, make([]byte, wire.BoxBlockSize))
		case wire.FCoords, wire.Velocities, wire.Forces:
			readFull(conn, make([]byte, 12*int(fh.Length)))
			if fh.Type == wire.FCoords {
				sum.FramesReceived++
				if !steerSent {
					mdHdr := make([]byte, wire.HeaderSize)
					wire.EncodeHeader(mdHdr, wire.Header{Type: wire.MDComm, Length: 1})
					conn.Write(mdHdr)
					body := make([]byte, wire.MDCommWireSize(1))
					wire.EncodeMDComm(body, []wire.MDCommForce{steered})
					conn.Write(body)
					steerSent = true
				}
			}
		}
	}

	discHdr := make([]byte, wire.HeaderSize)
	wire.EncodeHeader(discHdr, wire.Header{Type: wire.Disconnect})
	conn.Write(discHdr)
	done <- sum
}

func dialRetry(port int) (net.Conn, error) {
	var lastErr error
	for i := 0; i < 200; i++ {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return conn, nil
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	return nil, lastErr
}

func readFull(conn net.Conn, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := conn.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
