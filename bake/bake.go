// Package bake folds a compensation into stored geometry coordinates so that a
// node's transform can change without changing what is rendered.
//
// There are two named compensation paths:
//
//	RootMeshInverse      root mesh vertices, inverse of the root delta as a point
//	ForwardCompensation  bones and descendants, via the Frame carried down the
//	                     tree
//
// The root Frame is the inverse of the delta applied as a point, so root bones
// end up with the same math as root mesh vertices. Descendant frames are
// linear.
package bake

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/scene"
)

var (
	ErrEditSessionUnavailable = errors.New("edit session unavailable")
	ErrNonFinite              = errors.New("non finite coordinate")
)

// Frame is the compensation expressed in one node's local space.
type Frame struct {
	// Delta is set for the root frame only
	Delta mgl64.Mat4
	M     mgl64.Mat4
	Root  bool
}

// RootFrame returns the frame of the root node for delta.
func RootFrame(delta mgl64.Mat4) (Frame, error) {
	inv, err := affine.Invert(delta)
	if err != nil {
		return Frame{}, errors.Wrapf(err, "delta")
	}
	return Frame{Delta: delta, M: inv, Root: true}, nil
}

// Apply compensates a coordinate that lives in this frame's space. The root
// frame carries the delta translation, descendant frames are linear.
func (f Frame) Apply(v mgl64.Vec3) mgl64.Vec3 {
	if f.Root {
		return affine.ApplyPoint(f.M, v)
	}
	return affine.ApplyVector(f.M, v)
}

// Child returns the frame for a child whose local transform is local.
// The compensation is conjugated by the child's linear part so that rotated
// or scaled children stay in place too.
func (f Frame) Child(local mgl64.Mat4) (Frame, error) {
	a := affine.Linear(local)
	ainv, err := affine.Invert(a)
	if err != nil {
		return Frame{}, err
	}
	return Frame{M: ainv.Mul4(affine.Linear(f.M)).Mul4(a)}, nil
}

// Visited records geometry already compensated during one Apply.
type Visited map[interface{}]struct{}

// Mark returns true if g was not visited before.
func (v Visited) Mark(g interface{}) bool {
	if _, ok := v[g]; ok {
		return false
	}
	v[g] = struct{}{}
	return true
}

// Node is the single per-kind dispatch point. Geometry already in visited is skipped.
func Node(s EditSession, n *scene.Node, f Frame, visited Visited) error {
	switch n.Kind {
	case scene.KindMesh:
		if n.Mesh == nil || !visited.Mark(n.Mesh) {
			return nil
		}
		if f.Root {
			return errors.Wrapf(RootMeshInverse(n.Mesh, f.Delta), "mesh %q", n.Name)
		}
		return errors.Wrapf(ForwardCompensationMesh(n.Mesh, f), "mesh %q", n.Name)
	case scene.KindSkeleton:
		if n.Skeleton == nil || !visited.Mark(n.Skeleton) {
			return nil
		}
		return ForwardCompensationSkeleton(s, n, f)
	default:
		return Passthrough(n)
	}
}

// Passthrough is the baker of nodes without geometry.
func Passthrough(n *scene.Node) error {
	return nil
}
