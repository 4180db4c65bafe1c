package node

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidNodeName  = errors.New("node: invalid node name")
	ErrInvalidNamespace = errors.New("node: invalid namespace")
	ErrInvalidTopicName = errors.New("node: invalid topic name")
)

func validToken(tok string) bool {
	if tok == "" || (tok[0] >= '0' && tok[0] <= '9') {
		return false
	}
	for _, c := range tok {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

func validateNodeName(name string) error {
	if !validToken(name) {
		return fmt.Errorf("%w: %q", ErrInvalidNodeName, name)
	}
	return nil
}

// normalizeNamespace makes ns absolute. The empty namespace is "/".
func normalizeNamespace(ns string) (string, error) {
	if ns == "" || ns == "/" {
		return "/", nil
	}
	if !strings.HasPrefix(ns, "/") {
		ns = "/" + ns
	}
	if err := validateAbsoluteName(ns); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	return ns, nil
}

func validateAbsoluteName(name string) error {
	if len(name) < 2 || name[0] != '/' || strings.HasSuffix(name, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidTopicName, name)
	}
	for _, tok := range strings.Split(name[1:], "/") {
		if !validToken(tok) {
			return fmt.Errorf("%w: %q", ErrInvalidTopicName, name)
		}
	}
	return nil
}

// ResolveTopicName expands name against the node: absolute names are kept,
// "~" stands for the node's fully qualified name, and other relative names
// are placed in the node's namespace.
func (n *Node) ResolveTopicName(name string) (string, error) {
	var full string
	switch {
	case name == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidTopicName)
	case name == "~":
		full = n.FullyQualifiedName()
	case strings.HasPrefix(name, "~/"):
		full = n.FullyQualifiedName() + name[1:]
	case strings.HasPrefix(name, "/"):
		full = name
	default:
		full = join(n.namespace, name)
	}
	if err := validateAbsoluteName(full); err != nil {
		return "", err
	}
	return full, nil
}

func join(ns, name string) string {
	if ns == "/" {
		return "/" + name
	}
	return ns + "/" + name
}
