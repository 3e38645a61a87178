package editsession

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/bake"
	"github.com/mogaika/recursive_apply_transform/scene"
)

func rig(name string) *scene.Node {
	return scene.NewSkeletonNode(name, &scene.SkeletonData{Bones: []scene.Bone{
		{Name: "root", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 1, 0}},
		{Name: "tip", Head: mgl64.Vec3{0, 1, 0}, Tail: mgl64.Vec3{0, 2, 0}},
	}})
}

func TestEnterExit(t *testing.T) {
	h := NewHost()
	n := rig("Rig")

	eh, err := h.Enter(n)
	if err != nil {
		t.Fatalf("Enter: %v", err)
	}
	if h.Mode() != ModeEdit {
		t.Errorf("mode %v after Enter", h.Mode())
	}
	if _, err := h.Enter(rig("Other")); !errors.Is(err, bake.ErrEditSessionUnavailable) {
		t.Errorf("second Enter: %v", err)
	}

	moved := scene.Bone{Name: "tip", Head: mgl64.Vec3{0, 1, 0}, Tail: mgl64.Vec3{1, 1, 0}}
	if err := eh.SetBone(1, moved); err != nil {
		t.Fatalf("SetBone: %v", err)
	}
	if n.Skeleton.Bones[1] == moved {
		t.Errorf("bone written before Exit")
	}

	h.Exit(eh)
	if h.Mode() != ModeObject {
		t.Errorf("mode %v after Exit", h.Mode())
	}
	if n.Skeleton.Bones[1] != moved {
		t.Errorf("bone %+v after Exit; expected %+v", n.Skeleton.Bones[1], moved)
	}
	if entered, exited := h.Sessions(); entered != 1 || exited != 1 {
		t.Errorf("sessions %d/%d", entered, exited)
	}

	if err := eh.SetBone(0, moved); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SetBone after Exit: %v", err)
	}
}

func TestEnterRefused(t *testing.T) {
	locked := rig("Locked")
	locked.Locked = true

	for name, n := range map[string]*scene.Node{
		"mesh":   scene.NewMeshNode("Mesh", &scene.MeshData{}),
		"locked": locked,
		"nodata": {Name: "Broken", Kind: scene.KindSkeleton},
	} {
		h := NewHost()
		if _, err := h.Enter(n); !errors.Is(err, bake.ErrEditSessionUnavailable) {
			t.Errorf("%s: Enter error %v", name, err)
		}
		if h.Mode() != ModeObject {
			t.Errorf("%s: mode %v after refused Enter", name, h.Mode())
		}
	}

	h := NewHost()
	h.Busy = true
	if _, err := h.Enter(rig("Rig")); !errors.Is(err, bake.ErrEditSessionUnavailable) {
		t.Errorf("busy host: %v", err)
	}
}

func TestSetBoneInvalidatesViews(t *testing.T) {
	h := NewHost()
	eh, _ := h.Enter(rig("Rig"))
	defer h.Exit(eh)

	view := eh.EditBones()
	moved := scene.Bone{Name: "root", Head: mgl64.Vec3{0, 0, 1}, Tail: mgl64.Vec3{0, 1, 1}}
	if err := eh.SetBone(0, moved); err != nil {
		t.Fatal(err)
	}
	if view[0] == moved {
		t.Errorf("old view observed the change")
	}
	if eh.EditBones()[0] != moved {
		t.Errorf("fresh view misses the change")
	}
}

func TestSetBoneRejects(t *testing.T) {
	h := NewHost()
	n := rig("Rig")
	eh, _ := h.Enter(n)

	if err := eh.SetBone(5, scene.Bone{Tail: mgl64.Vec3{1, 0, 0}}); err == nil {
		t.Errorf("out of range index accepted")
	}
	zero := scene.Bone{Name: "root", Head: mgl64.Vec3{1, 1, 1}, Tail: mgl64.Vec3{1, 1, 1}}
	if err := eh.SetBone(0, zero); !errors.Is(err, ErrDegenerateBone) {
		t.Errorf("degenerate bone: %v", err)
	}

	h.Exit(eh)
	if n.Skeleton.Bones[0].Length() != 1 {
		t.Errorf("rejected bone reached the skeleton")
	}
}

func TestSetBoneKeepsZeroLengthBone(t *testing.T) {
	h := NewHost()
	n := scene.NewSkeletonNode("Rig", &scene.SkeletonData{Bones: []scene.Bone{
		{Name: "z", Head: mgl64.Vec3{0, 0, 0}, Tail: mgl64.Vec3{0, 0, 0}},
	}})
	eh, err := h.Enter(n)
	if err != nil {
		t.Fatal(err)
	}
	moved := scene.Bone{Name: "z", Head: mgl64.Vec3{0, 0, -1}, Tail: mgl64.Vec3{0, 0, -1}}
	if err := eh.SetBone(0, moved); err != nil {
		t.Errorf("zero length bone from the skeleton rejected: %v", err)
	}
	h.Exit(eh)
	if n.Skeleton.Bones[0] != moved {
		t.Errorf("bone %+v after Exit; expected %+v", n.Skeleton.Bones[0], moved)
	}
}

func TestExitForeignHandle(t *testing.T) {
	a, b := NewHost(), NewHost()
	ha, _ := a.Enter(rig("A"))
	b.Exit(ha)
	if a.Mode() != ModeEdit {
		t.Errorf("foreign exit closed the session")
	}
	a.Exit(ha)
	if a.Mode() != ModeObject {
		t.Errorf("mode %v", a.Mode())
	}
}
