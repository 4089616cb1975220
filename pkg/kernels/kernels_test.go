package kernels

import (
	"errors"
	"math"
	"testing"

	"github.com/tensorfabric/fabric/pkg/concurrency"
)

func TestUnaryMap(t *testing.T) {
	pool := concurrency.NewWorkerPool(4)
	defer pool.Shutdown()

	src := []float32{-1, 0, 1, 2}
	dst := make([]float32, len(src))
	if err := UnaryMap(pool, dst, src, func(v float32) float32 {
		if v < 0 {
			return 0
		}
		return v
	}); err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 0, 1, 2}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestBinaryMap(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	dst := make([]float32, 3)
	if err := BinaryMap(nil, dst, a, b, func(x, y float32) float32 { return x + y }); err != nil {
		t.Fatal(err)
	}
	want := []float32{5, 7, 9}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("dst[%d] = %v, want %v", i, dst[i], want[i])
		}
	}
}

func TestAddBiasBroadcast(t *testing.T) {
	y := []float32{1, 1, 1, 1, 1, 1} // 2x3
	bias := []float32{10, 20, 30}
	if err := AddBiasBroadcast(nil, y, 2, 3, bias); err != nil {
		t.Fatal(err)
	}
	want := []float32{11, 21, 31, 11, 21, 31}
	for i := range want {
		if y[i] != want[i] {
			t.Fatalf("y[%d] = %v, want %v", i, y[i], want[i])
		}
	}
}

func TestReduceSumRows(t *testing.T) {
	x := []float32{1, 2, 3, 4, 5, 6} // 2x3
	out := make([]float32, 3)
	pool := concurrency.NewWorkerPool(4)
	defer pool.Shutdown()

	if err := ReduceSumRows(pool, x, 2, 3, out); err != nil {
		t.Fatal(err)
	}
	want := []float32{5, 7, 9}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestReduceSumRowsAccumulatesOntoExisting(t *testing.T) {
	x := []float32{1, 1, 1, 1}
	out := []float32{100, 200}
	if err := ReduceSumRows(nil, x, 2, 2, out); err != nil {
		t.Fatal(err)
	}
	if out[0] != 102 || out[1] != 202 {
		t.Fatalf("out = %v, want [102,202]", out)
	}
}

func TestMatmulRowsHonorsStrides(t *testing.T) {
	// A (2x3) row-major, B stored as (2x3) but used transposed (3x2) via strides.
	a := []float32{1, 2, 3, 4, 5, 6}
	bData := []float32{1, 2, 3, 4, 5, 6} // logically 2x3, we want B^T (3x2)
	c := make([]float32, 4)

	// B^T[k][j] = bData[j*3+k] -> stride0=1 (over k), stride1=3 (over j)
	if err := MatmulRows(nil, a, 3, 1, bData, 1, 3, c, 2, 1, 2, 3, 2); err != nil {
		t.Fatal(err)
	}
	want := []float32{14, 32, 32, 77}
	for i := range want {
		if c[i] != want[i] {
			t.Fatalf("c[%d] = %v, want %v", i, c[i], want[i])
		}
	}
}

func TestLogisticMatchesNaiveSigmoid(t *testing.T) {
	for _, a := range []float32{-10, -1, 0, 1, 10} {
		got := Logistic(a)
		want := float32(1 / (1 + math.Exp(float64(-a))))
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Fatalf("Logistic(%v) = %v, want %v", a, got, want)
		}
	}
}

func TestLogisticBoundedInUnitInterval(t *testing.T) {
	for _, a := range []float32{-1000, -50, 0, 50, 1000} {
		v := Logistic(a)
		if v < 0 || v > 1 {
			t.Fatalf("Logistic(%v) = %v, out of [0,1]", a, v)
		}
	}
}

func TestDotChunkMatchesNaive(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5, 6, 7}
	b := []float32{7, 6, 5, 4, 3, 2, 1}
	var want float32
	for i := range a {
		want += a[i] * b[i]
	}
	got := DotChunk(a, b, len(a))
	if math.Abs(float64(got-want)) > 1e-4 {
		t.Fatalf("DotChunk = %v, want %v", got, want)
	}
}

func TestEnableNativeKernelsFallsBackGracefully(t *testing.T) {
	err := EnableNativeKernels()
	if err != nil && !errors.Is(err, ErrNativeKernelsUnavailable) {
		t.Fatalf("unexpected error type: %v", err)
	}
	// Whether or not it's "available" in this sandboxed environment, asking
	// must never panic and MatmulRows must still produce correct results.
	_ = NativeKernelsAvailable()

	a := []float32{1, 0, 0, 1}
	b := []float32{5, 6, 7, 8}
	c := make([]float32, 4)
	if err := MatmulRows(nil, a, 2, 1, b, 2, 1, c, 2, 1, 2, 2, 2); err != nil {
		t.Fatal(err)
	}
	for i := range b {
		if c[i] != b[i] {
			t.Fatalf("identity matmul c[%d] = %v, want %v", i, c[i], b[i])
		}
	}
}
