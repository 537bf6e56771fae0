// Package world holds the tile map entities walk on and the character buffer
// used to draw it. It has no dependency on the interpreter or the TUI.
package world

// Rect is an axis-aligned area of tiles.
type Rect struct {
	X, Y int // Bottom-left tile
	W, H int
}

// NewRect creates a rectangle with the given origin and size.
func NewRect(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, W: w, H: h}
}

// Right returns the first column past the rectangle.
func (r Rect) Right() int {
	return r.X + r.W
}

// Top returns the first row past the rectangle.
func (r Rect) Top() int {
	return r.Y + r.H
}

// Contains reports whether tile (x, y) lies inside the rectangle.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Top()
}

// Clamp restricts val to [lo, hi].
func Clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}
