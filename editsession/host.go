// Package editsession is an in-memory host that emulates the "edit mode" a
// skeleton must be in before its bone endpoints can be moved.
package editsession

import (
	"log"

	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/bake"
	"github.com/mogaika/recursive_apply_transform/scene"
)

// MinBoneLength is the shortest bone an edit may collapse a bone to. Bones that
// were already shorter when the session started are accepted as they are.
const MinBoneLength = 1e-9

var (
	ErrDegenerateBone = errors.New("degenerate bone")
	ErrSessionClosed  = errors.New("edit session closed")
)

type Mode int

const (
	ModeObject Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "EDIT"
	}
	return "OBJECT"
}

type Host struct {
	// Busy makes every Enter fail, like a host running a modal operation
	Busy bool

	mode   Mode
	active *handle

	entered int
	exited  int
}

func NewHost() *Host {
	return &Host{}
}

func (h *Host) Mode() Mode { return h.mode }

// Sessions returns how many sessions were entered and exited so far.
func (h *Host) Sessions() (entered, exited int) { return h.entered, h.exited }

func (h *Host) Enter(n *scene.Node) (bake.EditHandle, error) {
	if h.Busy {
		return nil, errors.Wrapf(bake.ErrEditSessionUnavailable, "host busy")
	}
	if h.active != nil {
		return nil, errors.Wrapf(bake.ErrEditSessionUnavailable, "already editing %q", h.active.node.Name)
	}
	if n.Kind != scene.KindSkeleton || n.Skeleton == nil {
		return nil, errors.Wrapf(bake.ErrEditSessionUnavailable, "node %q is not attachable", n.Name)
	}
	if n.Locked {
		return nil, errors.Wrapf(bake.ErrEditSessionUnavailable, "node %q is locked", n.Name)
	}

	hd := &handle{
		host:  h,
		node:  n,
		bones: append([]scene.Bone(nil), n.Skeleton.Bones...),
	}
	hd.entry = hd.bones
	h.active = hd
	h.mode = ModeEdit
	h.entered++
	return hd, nil
}

// Exit writes the edit bones back to the skeleton and returns to object mode.
func (h *Host) Exit(eh bake.EditHandle) {
	hd, ok := eh.(*handle)
	if !ok || hd == nil || hd != h.active {
		log.Printf("[editsession] exit with foreign handle %T ignored", eh)
		return
	}
	if hd.dirty {
		copy(hd.node.Skeleton.Bones, hd.bones)
	}
	hd.closed = true
	h.active = nil
	h.mode = ModeObject
	h.exited++
}

type handle struct {
	host   *Host
	node   *scene.Node
	bones  []scene.Bone
	entry  []scene.Bone
	dirty  bool
	closed bool
}

func (hd *handle) EditBones() []scene.Bone {
	return hd.bones
}

// SetBone reallocates the edit bone storage, so slices returned by earlier
// EditBones calls no longer observe changes.
func (hd *handle) SetBone(i int, b scene.Bone) error {
	if hd.closed {
		return ErrSessionClosed
	}
	if i < 0 || i >= len(hd.bones) {
		return errors.Errorf("bone index %d out of range [0,%d)", i, len(hd.bones))
	}
	if b.Length() < MinBoneLength && hd.entry[i].Length() >= MinBoneLength {
		return errors.Wrapf(ErrDegenerateBone, "bone %q", b.Name)
	}
	bones := make([]scene.Bone, len(hd.bones))
	copy(bones, hd.bones)
	bones[i] = b
	hd.bones = bones
	hd.dirty = true
	return nil
}
