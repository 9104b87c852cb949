package pipeline

// Connectivity selects the pixel neighbourhood used for labeling.
type Connectivity int

const (
	// Four joins pixels sharing an edge.
	Four Connectivity = 1
	// Eight also joins diagonal neighbours.
	Eight Connectivity = 2
)

var (
	offsets4 = [][2]int{{-1, 0}, {0, -1}, {0, 1}, {1, 0}}
	offsets8 = [][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}
)

// Label assigns each true pixel a component id starting at 1; false
// pixels get 0. It returns the labels and the size of each component
// indexed by id (sizes[0] is unused).
func Label(m *Mask, conn Connectivity) ([]int, []int) {
	offs := offsets4
	if conn == Eight {
		offs = offsets8
	}
	labels := make([]int, len(m.Pix))
	sizes := []int{0}
	stack := make([]int, 0, 64)

	for start, v := range m.Pix {
		if !v || labels[start] != 0 {
			continue
		}
		id := len(sizes)
		size := 0
		labels[start] = id
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			size++
			y, x := p/m.W, p%m.W
			for _, o := range offs {
				ny, nx := y+o[0], x+o[1]
				if !m.At(ny, nx) {
					continue
				}
				q := ny*m.W + nx
				if labels[q] == 0 {
					labels[q] = id
					stack = append(stack, q)
				}
			}
		}
		sizes = append(sizes, size)
	}
	return labels, sizes
}

// CountComponents returns the number of connected components.
func CountComponents(m *Mask, conn Connectivity) int {
	_, sizes := Label(m, conn)
	return len(sizes) - 1
}

// RemoveSmallObjects clears every 4-connected component with fewer than
// minSize pixels.
func RemoveSmallObjects(m *Mask, minSize int) *Mask {
	out := m.Clone()
	if minSize <= 1 {
		return out
	}
	labels, sizes := Label(m, Four)
	for i, id := range labels {
		if id != 0 && sizes[id] < minSize {
			out.Pix[i] = false
		}
	}
	return out
}
