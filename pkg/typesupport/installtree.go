package typesupport

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// PrefixPathEnv lists install prefixes, separated like PATH.
const PrefixPathEnv = "AMENT_PREFIX_PATH"

const interfaceExt = ".msg"

// InstallTree is a Source reading interface definitions from install
// prefixes laid out as <prefix>/share/<pkg>/<namespace>/<Type>.msg. A package
// is only considered installed when its marker exists in the resource index
// at <prefix>/share/ament_index/resource_index/packages/<pkg>.
type InstallTree struct {
	Prefixes []string
}

func NewInstallTree(prefixes ...string) *InstallTree {
	return &InstallTree{Prefixes: prefixes}
}

// InstallTreeFromEnv reads prefixes from AMENT_PREFIX_PATH.
func InstallTreeFromEnv() *InstallTree {
	var prefixes []string
	for _, p := range filepath.SplitList(os.Getenv(PrefixPathEnv)) {
		if p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return NewInstallTree(prefixes...)
}

func (s *InstallTree) Load(pkg, identifier string) (*Library, error) {
	for _, prefix := range s.Prefixes {
		marker := filepath.Join(prefix, "share", "ament_index", "resource_index", "packages", pkg)
		if _, err := os.Stat(marker); err != nil {
			continue
		}
		share := filepath.Join(prefix, "share", pkg)
		defs, err := readDefinitions(share)
		if err != nil {
			return nil, err
		}
		return newLibrary(pkg, identifier, share, defs), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, pkg)
}

func readDefinitions(share string) ([]Definition, error) {
	var defs []Definition
	err := filepath.Walk(share, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != interfaceExt {
			return nil
		}
		rel, err := filepath.Rel(share, filepath.Dir(path))
		if err != nil || rel == "." {
			return nil
		}
		text, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		defs = append(defs, Definition{
			Namespace: filepath.ToSlash(rel),
			Name:      strings.TrimSuffix(info.Name(), interfaceExt),
			Text:      string(text),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("typesupport: reading %s: %w", share, err)
	}
	return defs, nil
}
