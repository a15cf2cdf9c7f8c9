package mag

// lowPassFilter is a single-pole IIR filter over Vector3 samples. The first
// sample passes through unchanged.
type lowPassFilter struct {
	alpha float64
	state *Vector3
}

func newLowPassFilter(alpha float64) *lowPassFilter {
	return &lowPassFilter{alpha: alpha}
}

func (f *lowPassFilter) update(in Vector3) Vector3 {
	if f.state == nil {
		f.state = &in
		return in
	}
	out := Vector3{
		X: f.alpha*in.X + (1.0-f.alpha)*f.state.X,
		Y: f.alpha*in.Y + (1.0-f.alpha)*f.state.Y,
		Z: f.alpha*in.Z + (1.0-f.alpha)*f.state.Z,
	}
	f.state = &out
	return out
}

// sampleWindow is a bounded sliding window of smoothed samples. Pushing
// beyond capacity evicts the oldest entry.
type sampleWindow struct {
	capacity int
	samples  []Vector3
}

func newSampleWindow(capacity int) *sampleWindow {
	return &sampleWindow{capacity: capacity}
}

func (w *sampleWindow) push(s Vector3) {
	w.samples = append(w.samples, s)
	if len(w.samples) > w.capacity {
		w.samples = w.samples[1:]
	}
}

func (w *sampleWindow) len() int { return len(w.samples) }

// average returns the mean of the most recent n samples. n is clamped to
// the window length.
func (w *sampleWindow) average(n int) Vector3 {
	if n > len(w.samples) {
		n = len(w.samples)
	}
	if n == 0 {
		return Vector3{}
	}
	var sum Vector3
	for _, s := range w.samples[len(w.samples)-n:] {
		sum.X += s.X
		sum.Y += s.Y
		sum.Z += s.Z
	}
	return Vector3{X: sum.X / float64(n), Y: sum.Y / float64(n), Z: sum.Z / float64(n)}
}
