package pipeline

// Footprint is a structuring element given as (dy, dx) offsets from its
// centre.
type Footprint [][2]int

// Disk returns the offsets within Euclidean distance r of the centre.
func Disk(r int) Footprint {
	var fp Footprint
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dy*dy+dx*dx <= r*r {
				fp = append(fp, [2]int{dy, dx})
			}
		}
	}
	return fp
}

// Dilate sets every pixel reached by the reflected footprint from a true
// pixel. Pixels outside the mask count as false.
func Dilate(m *Mask, fp Footprint) *Mask {
	out := NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			for _, o := range fp {
				if m.At(y-o[0], x-o[1]) {
					out.Pix[y*m.W+x] = true
					break
				}
			}
		}
	}
	return out
}

// Erode keeps a pixel only if every footprint offset lands on a true
// pixel. Pixels outside the mask count as true, so shapes touching the
// border are not eaten away from that side.
func Erode(m *Mask, fp Footprint) *Mask {
	out := NewMask(m.H, m.W)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			keep := true
			for _, o := range fp {
				ny, nx := y+o[0], x+o[1]
				if ny < 0 || ny >= m.H || nx < 0 || nx >= m.W {
					continue
				}
				if !m.Pix[ny*m.W+nx] {
					keep = false
					break
				}
			}
			out.Pix[y*m.W+x] = keep
		}
	}
	return out
}

// Close is dilation followed by erosion with the same footprint.
func Close(m *Mask, fp Footprint) *Mask {
	return Erode(Dilate(m, fp), fp)
}
