// Package propagate changes the transform of a root node to a target while
// keeping the world-space appearance of the root and all of its descendants.
package propagate

import (
	"log"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/affine"
	"github.com/mogaika/recursive_apply_transform/bake"
	"github.com/mogaika/recursive_apply_transform/config"
	"github.com/mogaika/recursive_apply_transform/scene"
)

var Verbose bool

// TargetMatrix builds the matrix the root is moved to. Scale is validated
// upstream but not part of the matrix.
func TargetMatrix(target config.TargetTransform) mgl64.Mat4 {
	loc := target.Location
	return mgl64.Translate3D(loc[0], loc[1], loc[2]).Mul4(affine.EulerXYZ(target.Rotation))
}

// Delta returns inverse(current) * target.
func Delta(current mgl64.Mat4, target config.TargetTransform) (mgl64.Mat4, error) {
	inv, err := affine.Invert(current)
	if err != nil {
		return mgl64.Mat4{}, errors.Wrapf(err, "current transform")
	}
	delta := affine.Compose(inv, TargetMatrix(target))
	if !affine.IsInvertible(delta) {
		return mgl64.Mat4{}, errors.Wrapf(affine.ErrSingularTransform, "delta det %g", delta.Det())
	}
	return delta, nil
}

type Option func(*Propagator)

// Atomic restores every transform and geometry of the subtree when the walk
// fails part way. Without it nodes processed before the failure stay mutated.
func Atomic() Option {
	return func(p *Propagator) { p.atomic = true }
}

// Progress registers a callback invoked after each node is compensated.
func Progress(f func(n *scene.Node, done int)) Option {
	return func(p *Propagator) { p.progress = f }
}

type Propagator struct {
	session  bake.EditSession
	atomic   bool
	progress func(n *scene.Node, done int)
}

func New(session bake.EditSession, opts ...Option) *Propagator {
	p := &Propagator{session: session}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Result struct {
	Delta     mgl64.Mat4
	Nodes     int
	Meshes    int
	Skeletons int
}

type walker struct {
	*Propagator
	visited bake.Visited
	result  *Result
}

// Apply moves root to target and compensates the subtree. Each call computes
// a fresh delta against the current state.
func (p *Propagator) Apply(root *scene.Node, target config.TargetTransform) (res *Result, err error) {
	if root == nil {
		return nil, errors.New("no root node")
	}
	delta, err := Delta(root.Transform, target)
	if err != nil {
		return nil, errors.Wrapf(err, "root %q", root.Name)
	}
	frame, err := bake.RootFrame(delta)
	if err != nil {
		return nil, errors.Wrapf(err, "root %q", root.Name)
	}

	if p.atomic {
		snap := takeSnapshot(root)
		defer func() {
			if err != nil {
				snap.restore()
				log.Printf("[propagate] %q restored after failure: %v", root.Name, err)
			}
		}()
	}

	w := &walker{
		Propagator: p,
		visited:    make(bake.Visited),
		result:     &Result{Delta: delta},
	}
	if Verbose {
		log.Printf("[propagate] root %q delta:\n%v", root.Name, delta)
	}

	// geometry first: a failing edit session must leave the root untouched
	if err := w.bake(root, frame); err != nil {
		return nil, err
	}
	root.Transform = affine.Compose(root.Transform, delta)
	w.done(root)

	for _, c := range root.Childs {
		if err := w.walk(c, frame); err != nil {
			return nil, err
		}
	}
	return w.result, nil
}

func (w *walker) walk(n *scene.Node, parent bake.Frame) error {
	frame, err := parent.Child(n.Transform)
	if err != nil {
		return errors.Wrapf(err, "node %q", n.Name)
	}

	t := parent.Apply(affine.Translation(n.Transform))
	if !affine.IsFinite(t) {
		return errors.Wrapf(bake.ErrNonFinite, "node %q translation", n.Name)
	}
	n.Transform = affine.SetTranslation(n.Transform, t)

	if err := w.bake(n, frame); err != nil {
		return err
	}
	w.done(n)

	for _, c := range n.Childs {
		if err := w.walk(c, frame); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) bake(n *scene.Node, f bake.Frame) error {
	g := n.Geometry()
	fresh := g != nil && !w.visitedBefore(g)
	if err := bake.Node(w.session, n, f, w.visited); err != nil {
		return err
	}
	if fresh {
		switch n.Kind {
		case scene.KindMesh:
			w.result.Meshes++
		case scene.KindSkeleton:
			w.result.Skeletons++
		}
		if Verbose {
			log.Printf("[propagate] baked %v of %q", n.Kind, n.Name)
		}
	} else if g != nil && Verbose {
		log.Printf("[propagate] %v of %q already baked through another node", n.Kind, n.Name)
	}
	return nil
}

func (w *walker) visitedBefore(g interface{}) bool {
	_, ok := w.visited[g]
	return ok
}

func (w *walker) done(n *scene.Node) {
	w.result.Nodes++
	if w.progress != nil {
		w.progress(n, w.result.Nodes)
	}
}
