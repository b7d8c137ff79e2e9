// SPDX-License-Identifier: BSD-3-Clause

//go:build linux
// +build linux

package shm

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingWriter_WriteFrameRoundTrip(t *testing.T) {
	skipIfNoDevShm(t)
	name := "lfcd-test-ring"
	defer os.Remove(filepath.Join("/dev/shm", name))

	w, err := NewRingWriter(name, 4)
	require.NoError(t, err)
	defer w.Close()

	frame := RingFrame{
		TimestampUnixNano: 123,
		EngineEnabled:     true,
		Controls: []RingControlSample{
			{NameHash: HashControlName("cpu-fan"), PercentX100: 4200, TempCx100: 5530},
		},
	}
	require.NoError(t, w.WriteFrame(frame))

	slot := w.mem[ringHeaderSize : ringHeaderSize+frameSize]
	assert.Equal(t, uint64(123), binary.LittleEndian.Uint64(slot[8:16]))
	assert.Equal(t, byte(1), slot[16])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(slot[20:24]))

	rec := slot[frameHeaderSize : frameHeaderSize+controlRecordSize]
	assert.Equal(t, HashControlName("cpu-fan"), binary.LittleEndian.Uint64(rec[0:8]))
	assert.Equal(t, int32(4200), int32(binary.LittleEndian.Uint32(rec[8:12])))
}

func TestRingWriter_RejectsFilePath(t *testing.T) {
	_, err := NewRingWriter("/dev/shm/explicit-path", 2)
	assert.Error(t, err)
}
