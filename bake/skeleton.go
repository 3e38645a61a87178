package bake

import (
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/scene"
)

// EditSession is the host capability needed to move bone endpoints.
// Exit must restore the host state whatever happened inside the session.
type EditSession interface {
	Enter(n *scene.Node) (EditHandle, error)
	Exit(h EditHandle)
}

// EditHandle exposes the bones of the node being edited. A call to SetBone
// may invalidate slices previously returned by EditBones.
type EditHandle interface {
	EditBones() []scene.Bone
	SetBone(i int, b scene.Bone) error
}

// ForwardCompensationSkeleton moves every bone head and tail by the frame's
// compensation inside an edit session on n. New endpoints are computed into a
// buffer first and committed in bone order afterwards.
func ForwardCompensationSkeleton(s EditSession, n *scene.Node, f Frame) error {
	if s == nil {
		return errors.Wrapf(ErrEditSessionUnavailable, "skeleton %q: no host", n.Name)
	}
	h, err := s.Enter(n)
	if err != nil {
		return errors.Wrapf(err, "skeleton %q", n.Name)
	}
	defer s.Exit(h)

	bones := h.EditBones()
	buffer := make([]scene.Bone, len(bones))
	for i, b := range bones {
		b.Head = f.Apply(b.Head)
		b.Tail = f.Apply(b.Tail)
		if !affine.IsFinite(b.Head) || !affine.IsFinite(b.Tail) {
			return errors.Wrapf(ErrNonFinite, "skeleton %q bone %q", n.Name, b.Name)
		}
		buffer[i] = b
	}

	for i, b := range buffer {
		if err := h.SetBone(i, b); err != nil {
			return errors.Wrapf(err, "skeleton %q bone %q", n.Name, b.Name)
		}
	}
	return nil
}
