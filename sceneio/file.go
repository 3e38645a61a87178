package sceneio

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"

	"github.com/mogaika/recursive_apply_transform/scene"
	"github.com/mogaika/recursive_apply_transform/utils/gltfutils"
)

var ErrUnknownFormat = errors.New("unknown scene format")

// Formats lists the extensions accepted by Decode and Encode.
var Formats = []string{"yaml", "gltf", "glb", "fbx"}

func format(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "yml" {
		return "yaml"
	}
	return ext
}

// Decode reads a scene, the format is picked from the extension of name.
func Decode(r io.Reader, name string) (*scene.Node, error) {
	switch format(name) {
	case "yaml":
		return Load(r)
	case "gltf", "glb":
		var doc gltf.Document
		if err := gltf.NewDecoder(r).Decode(&doc); err != nil {
			return nil, errors.Wrapf(err, "Failed to decode gltf %q", name)
		}
		return ImportGLTF(&doc)
	case "fbx":
		return nil, errors.Wrapf(ErrUnknownFormat, "fbx is export only")
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", name)
}

// Encode writes root in the format picked from the extension of name.
func Encode(w io.Writer, root *scene.Node, name string) error {
	switch format(name) {
	case "yaml":
		return Save(w, root)
	case "gltf", "glb":
		doc, err := ExportGLTF(root)
		if err != nil {
			return err
		}
		if format(name) == "glb" {
			return gltfutils.ExportBinary(w, doc)
		}
		return gltfutils.ExportJSON(w, doc)
	case "fbx":
		return WriteFBX(w, root, name)
	}
	return errors.Wrapf(ErrUnknownFormat, "%q", name)
}

func LoadFile(path string) (*scene.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Cannot open scene")
	}
	defer f.Close()
	return Decode(f, path)
}

// SaveFile encodes into memory first so a failed export does not clobber path.
func SaveFile(path string, root *scene.Node) error {
	var buf bytes.Buffer
	if err := Encode(&buf, root, path); err != nil {
		return err
	}
	if err := ioutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "Cannot write scene")
	}
	return nil
}
