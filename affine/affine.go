// Package affine holds the homogeneous 4x4 helpers used by the compensation code.
// Matrices are mgl64 column-major, vectors are applied on the right (m * v).
package affine

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// SingularEpsilon bounds |det| divided by the product of the column lengths
// (of the linear part for affine matrices).
// The ratio does not depend on uniform scale, so tiny but well formed
// matrices stay invertible while nearly parallel columns do not.
const SingularEpsilon = 1e-12

var ErrSingularTransform = errors.New("singular transform")

func Compose(a, b mgl64.Mat4) mgl64.Mat4 {
	return a.Mul4(b)
}

func IsInvertible(m mgl64.Mat4) bool {
	det := m.Det()
	if math.IsNaN(det) || det == 0 {
		return false
	}
	norms := 1.0
	if m.Row(3) == (mgl64.Vec4{0, 0, 0, 1}) {
		// affine: translation does not change det
		for i := 0; i < 3; i++ {
			norms *= m.Col(i).Vec3().Len()
		}
	} else {
		for i := 0; i < 4; i++ {
			norms *= m.Col(i).Len()
		}
	}
	if norms == 0 || math.IsInf(norms, 0) {
		return false
	}
	return math.Abs(det)/norms > SingularEpsilon
}

func Invert(m mgl64.Mat4) (mgl64.Mat4, error) {
	if !IsInvertible(m) {
		return mgl64.Mat4{}, errors.Wrapf(ErrSingularTransform, "det %g", m.Det())
	}
	return m.Inv(), nil
}

// ApplyPoint transforms p as a position (translation applies).
func ApplyPoint(m mgl64.Mat4, p mgl64.Vec3) mgl64.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// ApplyVector transforms v as an offset (translation ignored).
func ApplyVector(m mgl64.Mat4, v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.TransformNormal(v, m)
}

func Translation(m mgl64.Mat4) mgl64.Vec3 {
	return m.Col(3).Vec3()
}

func SetTranslation(m mgl64.Mat4, t mgl64.Vec3) mgl64.Mat4 {
	m.SetCol(3, t.Vec4(1))
	return m
}

// Linear returns m with its translation column cleared.
func Linear(m mgl64.Mat4) mgl64.Mat4 {
	return SetTranslation(m, mgl64.Vec3{})
}

// EulerXYZ builds an intrinsic X-Y-Z rotation (radians): rotate about X,
// then about the new Y, then about the new Z.
func EulerXYZ(r mgl64.Vec3) mgl64.Mat4 {
	return mgl64.HomogRotate3DX(r[0]).
		Mul4(mgl64.HomogRotate3DY(r[1])).
		Mul4(mgl64.HomogRotate3DZ(r[2]))
}

func FromLocRotScale(loc, rot, scale mgl64.Vec3) mgl64.Mat4 {
	return mgl64.Translate3D(loc[0], loc[1], loc[2]).
		Mul4(EulerXYZ(rot)).
		Mul4(mgl64.Scale3D(scale[0], scale[1], scale[2]))
}

// Decompose splits m into translation, intrinsic XYZ euler (radians) and
// per-axis scale. Shear is dropped.
func Decompose(m mgl64.Mat4) (loc, rot, scale mgl64.Vec3) {
	loc = Translation(m)
	c0, c1, c2 := m.Col(0).Vec3(), m.Col(1).Vec3(), m.Col(2).Vec3()
	scale = mgl64.Vec3{c0.Len(), c1.Len(), c2.Len()}
	if m.Mat3().Det() < 0 {
		scale[0] = -scale[0]
	}
	for i, s := range scale {
		if s == 0 {
			scale[i] = 1
		}
	}
	r := mgl64.Mat3FromCols(c0.Mul(1/scale[0]), c1.Mul(1/scale[1]), c2.Mul(1/scale[2]))

	// R = Rx*Ry*Rz, so R[0][2] (row 0, col 2) = sin(y)
	sy := mgl64.Clamp(r.At(0, 2), -1, 1)
	rot[1] = math.Asin(sy)
	if math.Abs(sy) < 1-1e-12 {
		rot[0] = math.Atan2(-r.At(1, 2), r.At(2, 2))
		rot[2] = math.Atan2(-r.At(0, 1), r.At(0, 0))
	} else {
		// gimbal lock, fold everything into X
		rot[0] = math.Atan2(r.At(2, 1), r.At(1, 1))
		rot[2] = 0
	}
	return loc, rot, scale
}

func IsFinite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
