package video

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func solidFrame(width, height int, r, g, b byte) []byte {
	buf := make([]byte, width*height*3)
	for i := 0; i < width*height; i++ {
		buf[i*3] = r
		buf[i*3+1] = g
		buf[i*3+2] = b
	}
	return buf
}

func TestComputePHashIdenticalFramesMatch(t *testing.T) {
	f1 := solidFrame(64, 64, 10, 20, 30)
	f2 := solidFrame(64, 64, 10, 20, 30)
	require.Equal(t, ComputePHash(f1, 64, 64), ComputePHash(f2, 64, 64))
	require.Equal(t, 0, Hamming(ComputePHash(f1, 64, 64), ComputePHash(f2, 64, 64)))
}

func TestComputePHashUniformFramesHashIdentically(t *testing.T) {
	black := solidFrame(64, 64, 0, 0, 0)
	white := solidFrame(64, 64, 255, 255, 255)
	// Uniform frames: every cell equals the global mean, so no bit is set
	// on either side and the hashes are identical zero values -- this is
	// an expected degenerate case of an averaging hash on flat content.
	require.Equal(t, ComputePHash(black, 64, 64), ComputePHash(white, 64, 64))
}

func TestSharpnessFlatFrameIsZero(t *testing.T) {
	flat := solidFrame(32, 32, 128, 128, 128)
	require.Equal(t, 0.0, Sharpness(flat, 32, 32))
}

func TestSharpnessNoisyFrameIsPositive(t *testing.T) {
	width, height := 32, 32
	buf := make([]byte, width*height*3)
	for i := range buf {
		if i%7 == 0 {
			buf[i] = 255
		}
	}
	require.Greater(t, Sharpness(buf, width, height), 0.0)
}
