package pipeline

// Neighbourhood weights. The code of a pixel is the sum of the weights of its
// set neighbours:
//
//	  1   2   4
//	128   .   8
//	 64  32  16
const (
	wNW = 1 << iota
	wN
	wNE
	wE
	wSE
	wS
	wSW
	wW
)

// thinLUT maps a neighbourhood code to the subiterations that may delete the
// centre pixel: 1 only the first, 2 only the second, 3 either, 0 neither.
// Entries follow the Guo-Hall conditions, so two-pixel-wide diagonals and
// staircases thin to a single 8-connected line instead of eroding away.
var thinLUT = [256]uint8{
	0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 1, 1, 0, 0, 1, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 1, 1, 0, 1, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, 1, 1, 0, 1, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 3, 0, 1, 1, 1, 0, 1, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 1, 0, 1, 0, 1, 0,
	3, 0, 0, 0, 0, 0, 0, 0, 3, 0, 1, 0, 1, 0, 1, 0,
	0, 0, 2, 3, 0, 0, 2, 3, 0, 0, 0, 1, 0, 0, 0, 1,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 1,
	2, 2, 2, 2, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 2, 0, 0, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0,
	0, 2, 2, 2, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 2, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0, 0, 0,
	2, 2, 2, 2, 0, 0, 0, 0, 2, 2, 0, 0, 0, 0, 0, 0,
}

func neighbourCode(m *Mask, y, x int) int {
	code := 0
	if m.At(y-1, x-1) {
		code |= wNW
	}
	if m.At(y-1, x) {
		code |= wN
	}
	if m.At(y-1, x+1) {
		code |= wNE
	}
	if m.At(y, x+1) {
		code |= wE
	}
	if m.At(y+1, x+1) {
		code |= wSE
	}
	if m.At(y+1, x) {
		code |= wS
	}
	if m.At(y+1, x-1) {
		code |= wSW
	}
	if m.At(y, x-1) {
		code |= wW
	}
	return code
}

// Skeletonize thins m to one-pixel-wide curves. Each iteration runs two
// parallel subiterations: every pixel is judged against the mask as it was
// when the subiteration started, and the deletions are applied together at
// the end. Pixels outside the mask count as background. Iteration stops once
// a full iteration deletes nothing, so skeletonizing the result again
// returns it unchanged.
func Skeletonize(m *Mask) *Mask {
	skel := m.Clone()
	cleaned := m.Clone()
	for {
		removed := false
		for _, pass := range [2]uint8{1, 2} {
			for y := 0; y < skel.H; y++ {
				for x := 0; x < skel.W; x++ {
					if !skel.Pix[y*skel.W+x] {
						continue
					}
					if thinLUT[neighbourCode(skel, y, x)]&pass != 0 {
						cleaned.Pix[y*skel.W+x] = false
						removed = true
					}
				}
			}
			copy(skel.Pix, cleaned.Pix)
		}
		if !removed {
			return skel
		}
	}
}
