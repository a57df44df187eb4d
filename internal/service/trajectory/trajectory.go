package trajectory

import (
	"sync"
	"time"

	"github.com/zhouzirui/synesthesia/backend/internal/model/chat"
)

// DefaultCapacity is how many mood samples the graph keeps.
const DefaultCapacity = 20

const (
	strokeColor = "#888"
	strokeWidth = 2
)

// Surface is a 2D drawing target.
type Surface interface {
	Size() (width, height float64)
	Clear()
	MoveTo(x, y float64)
	LineTo(x, y float64)
	Stroke(color string, width float64)
}

// Trajectory is a bounded FIFO of mood snapshots.
type Trajectory struct {
	mu       sync.RWMutex
	capacity int
	points   []chat.TrajectoryPoint
	now      func() time.Time
}

// New returns an empty trajectory. A non-positive capacity uses DefaultCapacity.
func New(capacity int) *Trajectory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Trajectory{
		capacity: capacity,
		points:   make([]chat.TrajectoryPoint, 0, capacity+1),
		now:      time.Now,
	}
}

// Append records a snapshot of mood, evicting the oldest sample when full.
func (t *Trajectory) Append(mood chat.Mood) chat.TrajectoryPoint {
	point := chat.TrajectoryPoint{
		Spectrum:  mood.Spectrum,
		Intensity: mood.Intensity,
		Color:     mood.Color,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	point.Time = t.now()
	t.points = append(t.points, point)
	if len(t.points) > t.capacity {
		copy(t.points, t.points[1:])
		t.points = t.points[:t.capacity]
	}
	return point
}

// Points returns a copy of the buffer, oldest first.
func (t *Trajectory) Points() []chat.TrajectoryPoint {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]chat.TrajectoryPoint(nil), t.points...)
}

// Len returns the number of buffered samples.
func (t *Trajectory) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.points)
}

// Clear drops every sample.
func (t *Trajectory) Clear() {
	t.mu.Lock()
	t.points = t.points[:0]
	t.mu.Unlock()
}

// Render draws the buffer as a polyline. Intensity 1 is the top edge. With
// fewer than two samples the surface is only cleared.
func (t *Trajectory) Render(surface Surface) {
	points := t.Points()

	surface.Clear()
	if len(points) < 2 {
		return
	}

	width, height := surface.Size()
	last := float64(len(points) - 1)
	for i, p := range points {
		x := float64(i) / last * width
		y := height - p.Intensity*height
		if i == 0 {
			surface.MoveTo(x, y)
		} else {
			surface.LineTo(x, y)
		}
	}
	surface.Stroke(strokeColor, strokeWidth)
}
