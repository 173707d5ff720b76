package vision

// Box is a face bounding box [x1, y1, x2, y2] in pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 int
}

// Width returns the box width in pixels.
func (b Box) Width() int { return b.X2 - b.X1 }

// Height returns the box height in pixels.
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Clip clamps the box to [0, width] x [0, height].
func (b Box) Clip(width, height int) Box {
	return Box{
		X1: max(0, b.X1),
		Y1: max(0, b.Y1),
		X2: min(width, b.X2),
		Y2: min(height, b.Y2),
	}
}

// Empty reports whether the box has zero or negative area.
func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

// ScaleAround grows the box by factor around its center. The result is not
// clipped; callers clip against the frame they crop from.
func (b Box) ScaleAround(factor float64) Box {
	cx := float64(b.X1+b.X2) / 2
	cy := float64(b.Y1+b.Y2) / 2
	hw := float64(b.Width()) * factor / 2
	hh := float64(b.Height()) * factor / 2
	return Box{
		X1: int(cx - hw),
		Y1: int(cy - hh),
		X2: int(cx + hw),
		Y2: int(cy + hh),
	}
}

// Rescale maps the box from one coordinate space to another, e.g. from a
// downscaled detection frame back to the original resolution.
func (b Box) Rescale(factor float64) Box {
	return Box{
		X1: int(float64(b.X1) * factor),
		Y1: int(float64(b.Y1) * factor),
		X2: int(float64(b.X2) * factor),
		Y2: int(float64(b.Y2) * factor),
	}
}

// IoU calculates Intersection over Union between two boxes in the same
// coordinate system.
func IoU(a, b Box) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := float64((x2 - x1) * (y2 - y1))
	union := float64(a.Width()*a.Height()+b.Width()*b.Height()) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}
