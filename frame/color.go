package frame

import "fmt"

// Matrix selects the YCbCr to RGB coefficients.
type Matrix uint8

// Color matrices.
const (
	MatrixBT709 Matrix = iota
	MatrixBT601
	MatrixBT2020
)

// Transfer is the transfer characteristic of the encoded signal. It is
// forwarded to the swapchain as a colorspace hint.
type Transfer uint8

// Transfer characteristics.
const (
	TransferSRGB Transfer = iota
	TransferBT1886
	TransferPQ
	TransferHLG
)

var transferNames = [...]string{"srgb", "bt1886", "pq", "hlg"}

func (t Transfer) String() string {
	if int(t) < len(transferNames) {
		return transferNames[t]
	}
	return fmt.Sprintf("Transfer(%d)", uint8(t))
}

// Range distinguishes studio swing from full swing samples.
type Range uint8

// Sample ranges.
const (
	RangeLimited Range = iota
	RangeFull
)

// ColorInfo is the colorspace metadata attached to a frame.
type ColorInfo struct {
	Matrix   Matrix
	Transfer Transfer
	Range    Range
}

// DefaultColor returns BT.709 limited range, what most stream encoders emit.
func DefaultColor() ColorInfo {
	return ColorInfo{Matrix: MatrixBT709, Transfer: TransferBT1886, Range: RangeLimited}
}

// HDR reports whether the transfer function needs an HDR capable swapchain.
func (c ColorInfo) HDR() bool {
	return c.Transfer == TransferPQ || c.Transfer == TransferHLG
}

// coefficients returns Kr and Kb for the matrix.
func (m Matrix) coefficients() (kr, kb float32) {
	switch m {
	case MatrixBT601:
		return 0.299, 0.114
	case MatrixBT2020:
		return 0.2627, 0.0593
	default:
		return 0.2126, 0.0722
	}
}

// yuvToRGB holds precomputed conversion factors for one ColorInfo.
type yuvToRGB struct {
	yOff, yScale, cScale float32
	crR, cbG, crG, cbB   float32
}

func newYUVToRGB(c ColorInfo) yuvToRGB {
	kr, kb := c.Matrix.coefficients()
	kg := 1 - kr - kb
	t := yuvToRGB{yScale: 1, cScale: 1}
	if c.Range == RangeLimited {
		t.yOff = 16
		t.yScale = 255.0 / 219.0
		t.cScale = 255.0 / 224.0
	}
	t.crR = 2 * (1 - kr)
	t.cbB = 2 * (1 - kb)
	t.cbG = t.cbB * kb / kg
	t.crG = t.crR * kr / kg
	return t
}

func (t *yuvToRGB) convert(y, cb, cr byte) (r, g, b byte) {
	fy := (float32(y) - t.yOff) * t.yScale
	fcb := (float32(cb) - 128) * t.cScale
	fcr := (float32(cr) - 128) * t.cScale
	return clamp8(fy + t.crR*fcr), clamp8(fy - t.cbG*fcb - t.crG*fcr), clamp8(fy + t.cbB*fcb)
}

func clamp8(v float32) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
