package collective

import (
	"encoding/binary"
	"math"
)

// Record is one rank's contribution to a gathered sub-block: a particle tag
// plus its 3-vector (position, velocity, or force) for this step.
type Record struct {
	Tag int64
	V   [3]float32
}

// GatherTags collects every rank's local tag list onto rank 0: rank 0
// copies its own tags directly, then for every other rank posts a
// zero-byte "ready" token and waits for that rank's tags. Non-root ranks
// block on the token, then send. Returns the unsorted, rank-ordered tag
// list on rank 0; nil elsewhere.
func GatherTags(comm Comm, localTags []int64) ([]int64, error) {
	rank := comm.Rank()
	if rank != 0 {
		if _, err := comm.Recv(0); err != nil { // ready token
			return nil, err
		}
		return nil, comm.Send(0, encodeTags(localTags))
	}

	all := append([]int64(nil), localTags...)
	for r := 1; r < comm.Size(); r++ {
		if err := comm.Send(r, nil); err != nil { // ready token
			return nil, err
		}
		b, err := comm.Recv(r)
		if err != nil {
			return nil, err
		}
		all = append(all, decodeTags(b)...)
	}
	return all, nil
}

// GatherRecords collects one sub-block's worth of per-rank records onto
// rank 0, using the same ready-token handshake as GatherTags. Returns the
// rank-ordered record list on rank 0; nil elsewhere.
func GatherRecords(comm Comm, local []Record) ([]Record, error) {
	rank := comm.Rank()
	if rank != 0 {
		if _, err := comm.Recv(0); err != nil {
			return nil, err
		}
		return nil, comm.Send(0, encodeRecords(local))
	}

	all := append([]Record(nil), local...)
	for r := 1; r < comm.Size(); r++ {
		if err := comm.Send(r, nil); err != nil {
			return nil, err
		}
		b, err := comm.Recv(r)
		if err != nil {
			return nil, err
		}
		all = append(all, decodeRecords(b)...)
	}
	return all, nil
}

// ScatterToFrame writes each record's vector into dst[idx], where idx
// comes from lookup(tag). Records whose tag is absent from the reporting
// group (lookup ok=false) are skipped.
func ScatterToFrame(records []Record, dst [][3]float32, lookup func(tag int64) (idx int32, ok bool)) {
	for _, r := range records {
		idx, ok := lookup(r.Tag)
		if !ok {
			continue
		}
		dst[idx] = r.V
	}
}

func encodeTags(tags []int64) []byte {
	b := make([]byte, 8*len(tags))
	for i, t := range tags {
		binary.LittleEndian.PutUint64(b[i*8:], uint64(t))
	}
	return b
}

func decodeTags(b []byte) []int64 {
	n := len(b) / 8
	out := make([]int64, n)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

func encodeRecords(recs []Record) []byte {
	b := make([]byte, 20*len(recs)) // 8 (tag) + 4*3 (vector)
	for i, r := range recs {
		off := i * 20
		binary.LittleEndian.PutUint64(b[off:], uint64(r.Tag))
		binary.LittleEndian.PutUint32(b[off+8:], math.Float32bits(r.V[0]))
		binary.LittleEndian.PutUint32(b[off+12:], math.Float32bits(r.V[1]))
		binary.LittleEndian.PutUint32(b[off+16:], math.Float32bits(r.V[2]))
	}
	return b
}

func decodeRecords(b []byte) []Record {
	n := len(b) / 20
	out := make([]Record, n)
	for i := range out {
		off := i * 20
		out[i].Tag = int64(binary.LittleEndian.Uint64(b[off:]))
		out[i].V[0] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:]))
		out[i].V[1] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+12:]))
		out[i].V[2] = math.Float32frombits(binary.LittleEndian.Uint32(b[off+16:]))
	}
	return out
}
