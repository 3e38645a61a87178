package utils

import (
	"github.com/go-gl/mathgl/mgl64"
)

func DegreeToRadiansV3(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{mgl64.DegToRad(v[0]), mgl64.DegToRad(v[1]), mgl64.DegToRad(v[2])}
}

func RadiansToDegreeV3(v mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{mgl64.RadToDeg(v[0]), mgl64.RadToDeg(v[1]), mgl64.RadToDeg(v[2])}
}

func Vec3To32(v mgl64.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}

func Vec3From32(v [3]float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

func Mat4To32(m mgl64.Mat4) (out [16]float32) {
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

func Mat4From32(m [16]float32) (out mgl64.Mat4) {
	for i, v := range m {
		out[i] = float64(v)
	}
	return out
}
