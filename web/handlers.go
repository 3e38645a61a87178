package web

import (
	"bytes"
	"log"
	"net/http"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/bake"
	"github.com/mogaika/recursive_apply_transform/config"
	"github.com/mogaika/recursive_apply_transform/propagate"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/sceneio"
	"github.com/mogaika/recursive_apply_transform/utils"
	"github.com/mogaika/recursive_apply_transform/webutils"
)

var (
	ErrNothingSelected = errors.New("nothing selected")
	ErrNodeNotFound    = errors.New("node not found")
)

type jsonNode struct {
	Name     string      `json:"name"`
	Kind     string      `json:"kind"`
	Matrix   mgl64.Mat4  `json:"matrix"`
	Locked   bool        `json:"locked,omitempty"`
	Selected bool        `json:"selected,omitempty"`
	Vertices int         `json:"vertices,omitempty"`
	Bones    int         `json:"bones,omitempty"`
	Children []*jsonNode `json:"children,omitempty"`
}

func marshalNode(n *scene.Node, recursive bool) *jsonNode {
	jn := &jsonNode{
		Name:     n.Name,
		Kind:     n.Kind.String(),
		Matrix:   n.Transform,
		Locked:   n.Locked,
		Selected: n.Selected,
	}
	switch g := n.Geometry().(type) {
	case *scene.MeshData:
		jn.Vertices = len(g.Vertices)
	case *scene.SkeletonData:
		jn.Bones = len(g.Bones)
	}
	if recursive {
		for _, c := range n.Childs {
			jn.Children = append(jn.Children, marshalNode(c, true))
		}
	}
	return jn
}

type jsonNodeDetails struct {
	*jsonNode
	Parent   string     `json:"parent,omitempty"`
	World    mgl64.Mat4 `json:"world"`
	Location mgl64.Vec3 `json:"location"`
	Rotation mgl64.Vec3 `json:"rotation_degrees"`
	Scale    mgl64.Vec3 `json:"scale"`
}

type jsonApplyResult struct {
	Root      string     `json:"root"`
	Delta     mgl64.Mat4 `json:"delta"`
	Nodes     int        `json:"nodes"`
	Meshes    int        `json:"meshes"`
	Skeletons int        `json:"skeletons"`
}

// errorCode maps the sentinel behind err to a http status
func errorCode(err error) int {
	switch {
	case errors.Is(err, ErrNothingSelected):
		return http.StatusConflict
	case errors.Is(err, ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, config.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, affine.ErrSingularTransform):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bake.ErrEditSessionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, sceneio.ErrUnknownFormat):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) findNode(w http.ResponseWriter, r *http.Request) *scene.Node {
	name := mux.Vars(r)["name"]
	n := s.root.Find(name)
	if n == nil {
		webutils.WriteError(w, http.StatusNotFound, errors.Wrapf(ErrNodeNotFound, "%q", name))
	}
	return n
}

func (s *Server) HandlerJsonScene(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	webutils.WriteJson(w, marshalNode(s.root, true))
}

func (s *Server) HandlerJsonNode(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := s.findNode(w, r)
	if n == nil {
		return
	}
	loc, rot, scale := affine.Decompose(n.Transform)
	details := &jsonNodeDetails{
		jsonNode: marshalNode(n, false),
		World:    n.World(),
		Location: loc,
		Rotation: utils.RadiansToDegreeV3(rot),
		Scale:    scale,
	}
	if n.Parent != nil {
		details.Parent = n.Parent.Name
	}
	webutils.WriteJson(w, details)
}

func (s *Server) HandlerJsonPoll(w http.ResponseWriter, r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	webutils.WriteJson(w, map[string]bool{"enabled": s.root.AnySelected()})
}

func (s *Server) HandlerActionSelect(selected bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.lock.Lock()
		defer s.lock.Unlock()
		n := s.findNode(w, r)
		if n == nil {
			return
		}
		n.Selected = selected
		webutils.WriteJson(w, marshalNode(n, false))
	}
}

func (s *Server) HandlerActionApply(w http.ResponseWriter, r *http.Request) {
	var file config.TargetFile
	if err := webutils.ReadJson(r, &file); err != nil {
		webutils.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	res, root, err := s.apply(file)
	if err != nil {
		s.hub.Error("apply failed: %v", err)
		webutils.WriteError(w, errorCode(err), err)
		return
	}
	s.hub.Info("applied %q: %d nodes, %d meshes, %d skeletons", root.Name, res.Nodes, res.Meshes, res.Skeletons)
	webutils.WriteJson(w, &jsonApplyResult{
		Root:      root.Name,
		Delta:     res.Delta,
		Nodes:     res.Nodes,
		Meshes:    res.Meshes,
		Skeletons: res.Skeletons,
	})
}

func (s *Server) apply(file config.TargetFile) (*propagate.Result, *scene.Node, error) {
	var root *scene.Node
	if file.Root != "" {
		if root = s.root.Find(file.Root); root == nil {
			return nil, nil, errors.Wrapf(ErrNodeNotFound, "%q", file.Root)
		}
	} else if root = s.root.FirstSelected(); root == nil {
		return nil, nil, ErrNothingSelected
	}

	target, err := file.Target()
	if err != nil {
		return nil, root, err
	}

	count := 0
	root.Walk(func(*scene.Node) error {
		count++
		return nil
	})
	opts := []propagate.Option{propagate.Progress(s.hub.ApplyProgress(count))}
	if s.Atomic {
		opts = append(opts, propagate.Atomic())
	}

	log.Printf("[web] apply to %q: %s", root.Name, utils.SDump(target))
	res, err := propagate.New(s.host, opts...).Apply(root, target)
	return res, root, err
}

func (s *Server) HandlerExport(w http.ResponseWriter, r *http.Request) {
	name := "scene." + mux.Vars(r)["format"]

	s.lock.Lock()
	defer s.lock.Unlock()

	var buf bytes.Buffer
	if err := sceneio.Encode(&buf, s.root, name); err != nil {
		webutils.WriteError(w, errorCode(err), err)
		return
	}
	webutils.WriteFile(w, &buf, name)
}

// HandlerUploadScene replaces the edited scene with the posted "scene" file.
func (s *Server) HandlerUploadScene(w http.ResponseWriter, r *http.Request) {
	data, name, err := webutils.ReadFormFile(r, "scene")
	if err != nil {
		webutils.WriteError(w, http.StatusBadRequest, err)
		return
	}
	root, err := sceneio.Decode(bytes.NewReader(data), name)
	if err != nil {
		webutils.WriteError(w, http.StatusBadRequest, err)
		return
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.root = root
	s.hub.Info("loaded scene %q", name)
	webutils.WriteJson(w, marshalNode(s.root, true))
}
