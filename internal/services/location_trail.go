package services

import "github.com/adedejiosvaldo/safetrace/tripguard/internal/models"

// locationTrail is a fixed-capacity ring of the latest positions.
type locationTrail struct {
	buf   []models.Position
	start int
	size  int
}

func newLocationTrail(capacity int) *locationTrail {
	if capacity <= 0 {
		capacity = 1
	}
	return &locationTrail{buf: make([]models.Position, capacity)}
}

func (t *locationTrail) push(p models.Position) {
	if t.size < len(t.buf) {
		t.buf[(t.start+t.size)%len(t.buf)] = p
		t.size++
		return
	}
	t.buf[t.start] = p
	t.start = (t.start + 1) % len(t.buf)
}

// snapshot returns the positions oldest first.
func (t *locationTrail) snapshot() []models.Position {
	out := make([]models.Position, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.buf[(t.start+i)%len(t.buf)])
	}
	return out
}

func (t *locationTrail) reset() {
	t.start = 0
	t.size = 0
}
