package video

import "math/bits"

// Hash is a 256-bit perceptual hash, stored as four 64-bit words (spec
// §4.5.2). No perceptual-hash library exists anywhere in the reference
// pack; this is a closed, well-known DCT-free averaging hash over a
// fixed-size grayscale downsample, small enough that a third-party
// dependency would add more surface than it saves (documented in
// DESIGN.md's standard-library justification section).
type Hash [4]uint64

// hashGrid is the side length of the grayscale grid the hash is computed
// over (16x16 = 256 bits, one bit per cell).
const hashGrid = 16

// ComputePHash downsamples an RGB24 frame (width x height x 3 bytes,
// row-major) to a hashGrid x hashGrid grayscale grid and sets one bit per
// cell according to whether the cell is brighter than the grid mean.
func ComputePHash(rgb []byte, width, height int) Hash {
	cellW := width / hashGrid
	cellH := height / hashGrid
	if cellW == 0 {
		cellW = 1
	}
	if cellH == 0 {
		cellH = 1
	}

	var cells [hashGrid * hashGrid]float64
	var total float64

	for gy := 0; gy < hashGrid; gy++ {
		for gx := 0; gx < hashGrid; gx++ {
			var sum float64
			var n int
			y0 := gy * cellH
			y1 := min(y0+cellH, height)
			x0 := gx * cellW
			x1 := min(x0+cellW, width)
			for y := y0; y < y1; y++ {
				rowOff := y * width * 3
				for x := x0; x < x1; x++ {
					off := rowOff + x*3
					if off+2 >= len(rgb) {
						continue
					}
					gray := 0.299*float64(rgb[off]) + 0.587*float64(rgb[off+1]) + 0.114*float64(rgb[off+2])
					sum += gray
					n++
				}
			}
			if n > 0 {
				sum /= float64(n)
			}
			cells[gy*hashGrid+gx] = sum
			total += sum
		}
	}

	mean := total / float64(hashGrid*hashGrid)

	var h Hash
	for i, v := range cells {
		if v > mean {
			h[i/64] |= 1 << uint(i%64)
		}
	}
	return h
}

// Hamming returns the number of differing bits between two hashes.
func Hamming(a, b Hash) int {
	d := 0
	for i := 0; i < 4; i++ {
		d += bits.OnesCount64(a[i] ^ b[i])
	}
	return d
}
