package region

// Component is one 4-connected foreground region of a binary buffer.
type Component struct {
	MinX, MinY int
	MaxX, MaxY int // inclusive
	Area       int
	// Perimeter counts pixels with a background 4-neighbor or lying on the buffer edge.
	Perimeter int
	SumX      int
	SumY      int
}

// Centroid returns the mean pixel position.
func (c Component) Centroid() (float64, float64) {
	return float64(c.SumX) / float64(c.Area), float64(c.SumY) / float64(c.Area)
}

// Components labels 4-connected non-zero regions with a breadth-first flood fill.
// Regions are returned in raster order of their first pixel.
func Components(mask []byte, w, h int) []Component {
	if w <= 0 || h <= 0 || len(mask) < w*h {
		return nil
	}
	visited := make([]bool, w*h)
	queue := make([]int, 0, 1024)
	var comps []Component

	for start := 0; start < w*h; start++ {
		if mask[start] == 0 || visited[start] {
			continue
		}

		sx, sy := start%w, start/w
		c := Component{MinX: sx, MinY: sy, MaxX: sx, MaxY: sy}
		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true

		for head := 0; head < len(queue); head++ {
			idx := queue[head]
			x, y := idx%w, idx/w

			c.Area++
			c.SumX += x
			c.SumY += y
			if x < c.MinX {
				c.MinX = x
			}
			if x > c.MaxX {
				c.MaxX = x
			}
			if y < c.MinY {
				c.MinY = y
			}
			if y > c.MaxY {
				c.MaxY = y
			}

			edge := false
			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || nx >= w || ny < 0 || ny >= h {
					edge = true
					continue
				}
				nIdx := ny*w + nx
				if mask[nIdx] == 0 {
					edge = true
					continue
				}
				if !visited[nIdx] {
					visited[nIdx] = true
					queue = append(queue, nIdx)
				}
			}
			if edge {
				c.Perimeter++
			}
		}
		comps = append(comps, c)
	}
	return comps
}
