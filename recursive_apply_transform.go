package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/pkg/errors"

	"github.com/mogaika/recursive_apply_transform/config"
	"github.com/mogaika/recursive_apply_transform/editsession"
	"github.com/mogaika/recursive_apply_transform/propagate"
	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/sceneio"
	"github.com/mogaika/recursive_apply_transform/status"
	"github.com/mogaika/recursive_apply_transform/utils"
	"github.com/mogaika/recursive_apply_transform/web"
)

func targetFromFlags(loc, rot, scale string, degrees bool) (config.TargetTransform, error) {
	var f config.TargetFile
	var err error
	if f.Location, err = config.ParseVec3(loc); err != nil {
		return config.TargetTransform{}, err
	}
	if f.Rotation, err = config.ParseVec3(rot); err != nil {
		return config.TargetTransform{}, err
	}
	s, err := config.ParseVec3(scale)
	if err != nil {
		return config.TargetTransform{}, err
	}
	f.Scale = &s
	f.Degrees = degrees
	return f.Target()
}

func pickNode(root *scene.Node, name string) (*scene.Node, error) {
	if name != "" {
		if n := root.Find(name); n != nil {
			return n, nil
		}
		return nil, errors.Errorf("node %q not found", name)
	}
	if n := root.FirstSelected(); n != nil {
		return n, nil
	}
	return root, nil
}

func main() {
	var scenePath, rootName, targetPath, loc, rot, scale, out, encoding, addr string
	var degrees, atomic, dump, verbose bool
	flag.StringVar(&scenePath, "scene", "", "Scene file (yaml, gltf or glb)")
	flag.StringVar(&rootName, "root", "", "Node to move, default is the first selected node or the scene root")
	flag.StringVar(&targetPath, "target", "", "Target transform yaml, overrides -loc -rot -scale")
	flag.StringVar(&loc, "loc", "0,0,0", "Target location x,y,z")
	flag.StringVar(&rot, "rot", "0,0,0", "Target rotation x,y,z (intrinsic XYZ euler)")
	flag.StringVar(&scale, "scale", "1,1,1", "Target scale x,y,z, validated only")
	flag.BoolVar(&degrees, "degrees", false, "-rot is in degrees")
	flag.StringVar(&out, "out", "", "Write result scene (yaml, gltf, glb or fbx by extension)")
	flag.StringVar(&encoding, "encoding", "", "Charmap of yaml scene files, one of config.ListEncodings()")
	flag.BoolVar(&atomic, "atomic", false, "Restore the scene if apply fails part way")
	flag.BoolVar(&dump, "dump", false, "Dump scene before and after apply")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.StringVar(&addr, "i", "", "Serve the panel on this address instead of applying once")
	flag.Parse()

	if err := config.SetEncoding(encoding); err != nil {
		log.Fatalf("%v, known: %v", err, config.ListEncodings())
	}
	propagate.Verbose = verbose

	if scenePath == "" {
		flag.PrintDefaults()
		return
	}

	root, err := sceneio.LoadFile(scenePath)
	if err != nil {
		log.Fatal(err)
	}
	host := editsession.NewHost()

	if addr != "" {
		server := web.NewServer(root, host, status.Default)
		server.Atomic = atomic
		if err := web.StartServer(addr, server, "web"); err != nil {
			log.Fatal(err)
		}
		return
	}

	var target config.TargetTransform
	if targetPath != "" {
		var fileRoot string
		if target, fileRoot, err = config.LoadTarget(targetPath); err != nil {
			log.Fatal(err)
		}
		if rootName == "" {
			rootName = fileRoot
		}
	} else if target, err = targetFromFlags(loc, rot, scale, degrees); err != nil {
		log.Fatal(err)
	}

	node, err := pickNode(root, rootName)
	if err != nil {
		log.Fatal(err)
	}

	if dump {
		log.Printf("[main] scene before:\n%s", scene.StringTree(root))
		utils.LogDump(target)
	}

	opts := []propagate.Option{}
	if atomic {
		opts = append(opts, propagate.Atomic())
	}
	if verbose {
		opts = append(opts, propagate.Progress(func(n *scene.Node, done int) {
			log.Printf("[main] %d: %q", done, n.Name)
		}))
	}

	res, err := propagate.New(host, opts...).Apply(node, target)
	if err != nil {
		log.Fatalf("Apply to %q failed: %v", node.Name, err)
	}
	log.Printf("[main] %q moved: %d nodes, %d meshes, %d skeletons compensated",
		node.Name, res.Nodes, res.Meshes, res.Skeletons)

	if dump {
		log.Printf("[main] scene after:\n%s", scene.StringTree(root))
	}

	if out != "" {
		if err := sceneio.SaveFile(out, root); err != nil {
			log.Fatal(err)
		}
	} else {
		fmt.Print(scene.StringTree(root))
	}
}
