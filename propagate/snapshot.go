package propagate

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/mogaika/recursive_apply_transform/scene"
)

type snapshot struct {
	transforms map[*scene.Node]mgl64.Mat4
	meshes     map[*scene.MeshData][]mgl64.Vec3
	skeletons  map[*scene.SkeletonData][]scene.Bone
}

func takeSnapshot(root *scene.Node) *snapshot {
	s := &snapshot{
		transforms: make(map[*scene.Node]mgl64.Mat4),
		meshes:     make(map[*scene.MeshData][]mgl64.Vec3),
		skeletons:  make(map[*scene.SkeletonData][]scene.Bone),
	}
	root.Walk(func(n *scene.Node) error {
		s.transforms[n] = n.Transform
		if n.Mesh != nil {
			if _, ok := s.meshes[n.Mesh]; !ok {
				s.meshes[n.Mesh] = append([]mgl64.Vec3(nil), n.Mesh.Vertices...)
			}
		}
		if n.Skeleton != nil {
			if _, ok := s.skeletons[n.Skeleton]; !ok {
				s.skeletons[n.Skeleton] = append([]scene.Bone(nil), n.Skeleton.Bones...)
			}
		}
		return nil
	})
	return s
}

func (s *snapshot) restore() {
	for n, m := range s.transforms {
		n.Transform = m
	}
	for mesh, vertices := range s.meshes {
		copy(mesh.Vertices, vertices)
	}
	for skeleton, bones := range s.skeletons {
		copy(skeleton.Bones, bones)
	}
}
