package config

import (
	"io"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// nil means input is already UTF-8
var currentCharMap *charmap.Charmap

func SetEncoding(name string) error {
	if name == "" || name == "utf-8" || name == "UTF-8" {
		currentCharMap = nil
		return nil
	}
	for _, enc := range charmap.All {
		if cm, ok := enc.(*charmap.Charmap); ok {
			if cm.String() == name {
				currentCharMap = cm
				return nil
			}
		}
	}
	return errors.Errorf("Failed to find encoding %q", name)
}

func ListEncodings() []string {
	list := []string{"UTF-8"}
	for _, enc := range charmap.All {
		if cm, ok := enc.(*charmap.Charmap); ok {
			list = append(list, cm.String())
		}
	}
	return list
}

func GetEncoding() *charmap.Charmap {
	return currentCharMap
}

// DecodeReader wraps r so that text in the configured encoding comes out as UTF-8.
func DecodeReader(r io.Reader) io.Reader {
	if currentCharMap == nil {
		return r
	}
	return currentCharMap.NewDecoder().Reader(r)
}
