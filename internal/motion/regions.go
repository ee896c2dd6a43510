package motion

import "image"

// dilate grows the mask by one pixel with a 3x3 square element.
func dilate(mask []bool, w, h int) []bool {
	out := make([]bool, len(mask))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[y*w+x] {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < w && ny < h {
						out[ny*w+nx] = true
					}
				}
			}
		}
	}
	return out
}

// regions labels 8-connected blobs and returns the bounding boxes of those
// covering more than minArea pixels.
func regions(mask []bool, w, h, minArea int) []image.Rectangle {
	visited := make([]bool, len(mask))
	var out []image.Rectangle
	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}
		box, area := floodFill(mask, visited, start%w, start/w, w, h)
		if area > minArea {
			out = append(out, box)
		}
	}
	return out
}

func floodFill(mask, visited []bool, sx, sy, w, h int) (image.Rectangle, int) {
	box := image.Rect(sx, sy, sx+1, sy+1)
	area := 0
	stack := []image.Point{{sx, sy}}
	visited[sy*w+sx] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		area++
		box = box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				nx, ny := p.X+dx, p.Y+dy
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				i := ny*w + nx
				if mask[i] && !visited[i] {
					visited[i] = true
					stack = append(stack, image.Point{nx, ny})
				}
			}
		}
	}
	return box, area
}
