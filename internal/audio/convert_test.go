package audio

import (
	"math"
	"testing"
)

func TestFloat32ToInt16_Clamps(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.5, -1.5}
	out := Float32ToInt16(in)

	if out[0] != 0 {
		t.Errorf("0 should map to 0, got %d", out[0])
	}
	if out[3] != math.MaxInt16 {
		t.Errorf("1.5 should clamp to MaxInt16, got %d", out[3])
	}
	if out[4] != -math.MaxInt16 {
		t.Errorf("-1.5 should clamp to -MaxInt16, got %d", out[4])
	}
}

func TestInt16BytesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 1234, -1234, math.MaxInt16, math.MinInt16}
	got := BytesToInt16(Int16ToBytes(in))

	if len(got) != len(in) {
		t.Fatalf("length mismatch: %d != %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("index %d: %d != %d", i, got[i], in[i])
		}
	}
}

func TestStereoBytesToMonoFloat32(t *testing.T) {
	// 两帧立体声：(1000, 3000) 和 (-2000, -2000)
	frames := Int16ToBytes([]int16{1000, 3000, -2000, -2000})
	out := StereoBytesToMonoFloat32(frames)

	if len(out) != 2 {
		t.Fatalf("expected 2 mono frames, got %d", len(out))
	}
	if math.Abs(float64(out[0])-2000.0/32768.0) > 1e-6 {
		t.Errorf("frame 0: expected average of channels, got %v", out[0])
	}
	if math.Abs(float64(out[1])+2000.0/32768.0) > 1e-6 {
		t.Errorf("frame 1: expected -2000/32768, got %v", out[1])
	}
}

func TestStereoBytesToMonoFloat32_TruncatesPartialFrame(t *testing.T) {
	data := make([]byte, 7) // 一帧半
	out := StereoBytesToMonoFloat32(data)
	if len(out) != 1 {
		t.Errorf("expected partial frame truncated, got %d frames", len(out))
	}
}
