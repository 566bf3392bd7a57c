package video

// Sharpness estimates focus quality as the variance of a 3x3 Laplacian
// applied to the grayscale conversion of an RGB24 frame (spec §4.5.2:
// "Laplacian variance, approximated on the 480 px frame"). Higher values
// mean a crisper image; used to pick the best representative frame in an
// open scene. Operates directly on the decoder's raw buffer — no image
// library needed, matching internal/video's phash.go rationale.
func Sharpness(rgb []byte, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0
	}

	gray := make([]float64, width*height)
	for i := 0; i < width*height; i++ {
		off := i * 3
		if off+2 >= len(rgb) {
			break
		}
		gray[i] = 0.299*float64(rgb[off]) + 0.587*float64(rgb[off+1]) + 0.114*float64(rgb[off+2])
	}

	var sum, sumSq float64
	var n int
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			idx := y*width + x
			lap := -4*gray[idx] +
				gray[idx-1] + gray[idx+1] +
				gray[idx-width] + gray[idx+width]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return sumSq/float64(n) - mean*mean
}
