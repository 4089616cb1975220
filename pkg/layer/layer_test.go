package layer

import (
	"math"
	"testing"

	"github.com/tensorfabric/fabric/pkg/tensor"
)

func approxEqual(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-4
}

func TestRectifiedForwardNonNegative(t *testing.T) {
	r := NewRectified()
	x, _ := tensor.FromData([]float32{-3, -1, 0, 2, 5}, 5)
	y, err := r.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range y.Data() {
		if v < 0 {
			t.Fatalf("Rectified output has negative value %v", v)
		}
	}
}

func TestRectifiedBackwardGating(t *testing.T) {
	r := NewRectified()
	x, _ := tensor.FromData([]float32{-1, 2, -3, 4}, 4)
	if _, err := r.Forward(x); err != nil {
		t.Fatal(err)
	}
	ones, _ := tensor.FromData([]float32{1, 1, 1, 1}, 4)
	dx, err := r.Backward(ones, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 1, 0, 1}
	for i, w := range want {
		if dx.Data()[i] != w {
			t.Fatalf("dx[%d] = %v, want %v", i, dx.Data()[i], w)
		}
	}
}

func TestSequentialForwardCorrectness(t *testing.T) {
	// Affine(2->2, W=I, b=0) -> Rectified on [[1,-1],[-2,3]] yields [[1,0],[0,3]].
	affine, err := NewAffine(2, 2, 42)
	if err != nil {
		t.Fatal(err)
	}
	wd := affine.W.Data()
	wd[0], wd[1], wd[2], wd[3] = 1, 0, 0, 1
	bd := affine.B.Data()
	bd[0], bd[1] = 0, 0

	seq := NewSequential(nil)
	seq.Add(affine)
	seq.Add(NewRectified())

	x, _ := tensor.FromData([]float32{1, -1, -2, 3}, 2, 2)
	y, err := seq.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 0, 0, 3}
	for i, w := range want {
		if !approxEqual(y.Data()[i], w) {
			t.Fatalf("y[%d] = %v, want %v", i, y.Data()[i], w)
		}
	}
}

func TestSequentialEmptyIsIdentity(t *testing.T) {
	seq := NewSequential(nil)
	x, _ := tensor.FromData([]float32{1, 2, 3}, 3)

	y, err := seq.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	for i := range y.Data() {
		if y.Data()[i] != x.Data()[i] {
			t.Fatalf("forward on empty sequence changed data at %d", i)
		}
	}

	grad, _ := tensor.FromData([]float32{9, 9, 9}, 3)
	out, err := seq.Backward(grad, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range out.Data() {
		if out.Data()[i] != grad.Data()[i] {
			t.Fatalf("backward on empty sequence changed data at %d", i)
		}
	}
}

func TestLogisticForwardBackwardShape(t *testing.T) {
	g := NewLogistic()
	x, _ := tensor.FromData([]float32{-2, 0, 2}, 3)
	y, err := g.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range y.Data() {
		if v <= 0 || v >= 1 {
			t.Fatalf("logistic output %v not in (0,1)", v)
		}
	}

	grad, _ := tensor.FromData([]float32{1, 1, 1}, 3)
	dx, err := g.Backward(grad, 0.1)
	if err != nil {
		t.Fatal(err)
	}
	if dx.Length() != 3 {
		t.Fatalf("dx length = %d, want 3", dx.Length())
	}
}

func TestLeakyRectifiedDefaultSlope(t *testing.T) {
	l := NewLeakyRectified(0)
	if l.Alpha != DefaultLeakySlope {
		t.Fatalf("Alpha = %v, want default %v", l.Alpha, DefaultLeakySlope)
	}

	x, _ := tensor.FromData([]float32{-10, 10}, 2)
	y, err := l.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	if !approxEqual(y.Data()[0], -10*DefaultLeakySlope) {
		t.Fatalf("negative branch = %v, want %v", y.Data()[0], -10*DefaultLeakySlope)
	}
	if y.Data()[1] != 10 {
		t.Fatalf("positive branch = %v, want 10", y.Data()[1])
	}
}

func TestAffineParametersUpdateOnBackward(t *testing.T) {
	affine, err := NewAffine(2, 2, 7)
	if err != nil {
		t.Fatal(err)
	}
	before := append([]float32(nil), affine.W.Data()...)

	x, _ := tensor.FromData([]float32{1, 2, 3, 4}, 2, 2)
	if _, err := affine.Forward(x); err != nil {
		t.Fatal(err)
	}
	grad, _ := tensor.FromData([]float32{1, 1, 1, 1}, 2, 2)
	if _, err := affine.Backward(grad, 0.1); err != nil {
		t.Fatal(err)
	}

	same := true
	for i := range before {
		if before[i] != affine.W.Data()[i] {
			same = false
		}
	}
	if same {
		t.Fatal("weights did not change after Backward with non-zero gradient")
	}
}
