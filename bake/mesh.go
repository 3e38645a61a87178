package bake

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/scene"
)

// RootMeshInverse moves the root's own vertices by the inverse of delta, so
// that the new root transform (old * delta) renders them where they were.
func RootMeshInverse(mesh *scene.MeshData, delta mgl64.Mat4) error {
	inv, err := affine.Invert(delta)
	if err != nil {
		return err
	}
	return bakeVertices(mesh, func(v mgl64.Vec3) mgl64.Vec3 {
		return affine.ApplyPoint(inv, v)
	})
}

// ForwardCompensationMesh moves vertices by the frame's compensation.
func ForwardCompensationMesh(mesh *scene.MeshData, f Frame) error {
	return bakeVertices(mesh, f.Apply)
}

func bakeVertices(mesh *scene.MeshData, apply func(mgl64.Vec3) mgl64.Vec3) error {
	out := make([]mgl64.Vec3, len(mesh.Vertices))
	for i, v := range mesh.Vertices {
		out[i] = apply(v)
		if !affine.IsFinite(out[i]) {
			return errors.Wrapf(ErrNonFinite, "vertex %d", i)
		}
	}
	copy(mesh.Vertices, out)
	return nil
}
