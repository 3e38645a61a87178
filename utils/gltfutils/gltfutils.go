package gltfutils

import (
	"io"

	"github.com/qmuntal/gltf"
)

// GLTFCacher remembers what was already written to Doc, so geometry shared
// by several nodes is exported once.
type GLTFCacher struct {
	Doc   *gltf.Document
	cache map[interface{}]interface{}
}

func NewCacher() *GLTFCacher {
	return &GLTFCacher{
		Doc:   gltf.NewDocument(),
		cache: make(map[interface{}]interface{}),
	}
}

func (c *GLTFCacher) AddCache(key interface{}, v interface{}) {
	c.cache[key] = v
}

func (c *GLTFCacher) GetCached(key interface{}) interface{} {
	return c.cache[key]
}

func (c *GLTFCacher) GetCachedOr(key interface{}, f func() interface{}) interface{} {
	if v, ok := c.cache[key]; ok {
		return v
	}
	v := f()
	c.cache[key] = v
	return v
}

func ExportBinary(w io.Writer, doc *gltf.Document) error {
	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = true
	return encoder.Encode(doc)
}

// ExportJSON writes a .gltf with buffers embedded as data uris.
func ExportJSON(w io.Writer, doc *gltf.Document) error {
	for _, b := range doc.Buffers {
		if b.URI == "" {
			b.EmbeddedResource()
		}
	}
	encoder := gltf.NewEncoder(w)
	encoder.AsBinary = false
	encoder.SetJSONIndent("", "  ")
	return encoder.Encode(doc)
}
