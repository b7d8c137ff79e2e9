// SPDX-License-Identifier: BSD-3-Clause

//go:build linux
// +build linux

package shm

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Binary ring-of-frames telemetry, the secondary publish mode alongside
// the JSON blob in shm.go: a fixed-size shared-memory ring of
// fixed-size, seqlock-guarded frames, so a reader never has to parse
// JSON or take a lock to get the latest control state. There is no
// teacher or pack precedent for this layout (the original implementation
// only ever published JSON); it follows the standard single-writer
// seqlock convention: an odd sequence number means "write in progress",
// an even one means "consistent snapshot", and a reader retries if the
// sequence changed while it copied the frame.
const (
	ringMagic   = 0x4c464344 // "LFCD"
	ringVersion = 1

	maxControlsPerFrame = 64
	controlRecordSize   = 16 // nameHash(8) + percentX100(4) + tempCx100(4)
	frameHeaderSize     = 24 // seq(8) + timestampUnixNano(8) + engineEnabled(1)+pad(3) + controlCount(4)
	frameSize           = frameHeaderSize + maxControlsPerFrame*controlRecordSize
	ringHeaderSize      = 24 // magic(4) + version(4) + frameSize(4) + frameCount(4) + pad(8)
)

// RingControlSample is one control's value in a ring frame. Control
// names are hashed (FNV-1a) rather than stored inline so every frame has
// a fixed size; a reader that needs names reads them once from the JSON
// publisher's snapshot and matches by hash.
type RingControlSample struct {
	NameHash    uint64
	PercentX100 int32
	TempCx100   int32
}

// RingFrame is one tick's worth of engine state.
type RingFrame struct {
	TimestampUnixNano int64
	EngineEnabled     bool
	Controls          []RingControlSample
}

// HashControlName derives the stable hash a reader matches against
// RingControlSample.NameHash.
func HashControlName(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return h.Sum64()
}

// RingWriter publishes RingFrames into a shared-memory ring buffer.
type RingWriter struct {
	mem        []byte
	frameCount uint32
	next       uint64
}

// NewRingWriter opens or creates a POSIX shared-memory object sized for
// frameCount frames and writes its header. frameCount must be at least 1.
func NewRingWriter(shmNameOrPath string, frameCount int) (*RingWriter, error) {
	if frameCount < 1 {
		frameCount = 1
	}
	name := NormalizeShmName(shmNameOrPath)
	if name == "" {
		return nil, fmt.Errorf("ring telemetry requires a POSIX shm name, got file path %q", shmNameOrPath)
	}

	path := "/dev/shm/" + name[1:]
	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0660)
	if err != nil {
		return nil, fmt.Errorf("shm_open %s: %w", name, err)
	}
	defer unix.Close(fd)

	size := ringHeaderSize + frameCount*frameSize
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		return nil, fmt.Errorf("ftruncate %s: %w", name, err)
	}

	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}

	binary.LittleEndian.PutUint32(mem[0:4], ringMagic)
	binary.LittleEndian.PutUint32(mem[4:8], ringVersion)
	binary.LittleEndian.PutUint32(mem[8:12], uint32(frameSize))
	binary.LittleEndian.PutUint32(mem[12:16], uint32(frameCount))

	return &RingWriter{mem: mem, frameCount: uint32(frameCount)}, nil
}

// Close unmaps the ring's shared memory.
func (w *RingWriter) Close() error {
	return unix.Munmap(w.mem)
}

// WriteFrame writes the next frame into the ring, overwriting the
// oldest slot once the ring has wrapped.
func (w *RingWriter) WriteFrame(f RingFrame) error {
	if len(f.Controls) > maxControlsPerFrame {
		f.Controls = f.Controls[:maxControlsPerFrame]
	}

	slot := w.next % uint64(w.frameCount)
	off := ringHeaderSize + int(slot)*frameSize
	frame := w.mem[off : off+frameSize]

	seq := w.next*2 + 1
	atomicStoreUint64(frame[0:8], seq)

	binary.LittleEndian.PutUint64(frame[8:16], uint64(f.TimestampUnixNano))
	if f.EngineEnabled {
		frame[16] = 1
	} else {
		frame[16] = 0
	}
	binary.LittleEndian.PutUint32(frame[20:24], uint32(len(f.Controls)))

	for i, c := range f.Controls {
		rec := frame[frameHeaderSize+i*controlRecordSize : frameHeaderSize+(i+1)*controlRecordSize]
		binary.LittleEndian.PutUint64(rec[0:8], c.NameHash)
		binary.LittleEndian.PutUint32(rec[8:12], uint32(c.PercentX100))
		binary.LittleEndian.PutUint32(rec[12:16], uint32(c.TempCx100))
	}

	atomicStoreUint64(frame[0:8], seq+1)
	w.next++
	return nil
}

func atomicStoreUint64(b []byte, v uint64) {
	p := (*uint64)(unsafe.Pointer(&b[0]))
	atomic.StoreUint64(p, v)
}
