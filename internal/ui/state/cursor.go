package state

// MoveCursor moves the cursor by delta, clamped to the items.
func (p *Picker) MoveCursor(delta int) bool {
	if len(p.Items) == 0 {
		p.Cursor = 0
		return false
	}
	old := p.Cursor
	p.Cursor = clamp(p.Cursor+delta, 0, len(p.Items)-1)
	return p.Cursor != old
}

// MoveCursorHome moves the cursor to the first item.
func (p *Picker) MoveCursorHome() bool {
	return p.MoveCursor(-len(p.Items))
}

// MoveCursorEnd moves the cursor to the last item.
func (p *Picker) MoveCursorEnd() bool {
	return p.MoveCursor(len(p.Items))
}

// EnsureCursorVisible scrolls so the cursor is inside a window of
// maxVisible rows. A non-positive maxVisible shows everything.
func (p *Picker) EnsureCursorVisible(maxVisible int) {
	if len(p.Items) == 0 || maxVisible <= 0 {
		p.ViewportOffset = 0
		return
	}
	p.Cursor = clamp(p.Cursor, 0, len(p.Items)-1)
	maxOffset := len(p.Items) - maxVisible
	if maxOffset < 0 {
		maxOffset = 0
	}
	p.ViewportOffset = clamp(p.ViewportOffset, 0, maxOffset)
	if p.Cursor < p.ViewportOffset {
		p.ViewportOffset = p.Cursor
	}
	if p.Cursor >= p.ViewportOffset+maxVisible {
		p.ViewportOffset = clamp(p.Cursor-maxVisible+1, 0, maxOffset)
	}
}

// Visible returns the rows inside the viewport and the offset of the first.
func (p *Picker) Visible(maxVisible int) ([]Item, int) {
	p.EnsureCursorVisible(maxVisible)
	if maxVisible <= 0 || len(p.Items) <= maxVisible {
		return p.Items, 0
	}
	return p.Items[p.ViewportOffset : p.ViewportOffset+maxVisible], p.ViewportOffset
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
