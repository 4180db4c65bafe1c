package typesupport

import (
	"fmt"
	"strings"
)

const (
	TypesupportC                = "rosidl_typesupport_c"
	TypesupportCpp              = "rosidl_typesupport_cpp"
	TypesupportIntrospectionCpp = "rosidl_typesupport_introspection_cpp"

	// DefaultNamespace is used when a type name omits the middle module,
	// as in "std_msgs/String".
	DefaultNamespace = "msg"

	typeSeparator = "/"
	symbolInfix   = "__get_message_type_support_handle__"
)

var supportedIdentifiers = map[string]bool{
	TypesupportC:                true,
	TypesupportCpp:              true,
	TypesupportIntrospectionCpp: true,
}

// TypeName is a parsed "package/namespace/Type" string.
type TypeName struct {
	Package   string
	Namespace string
	Name      string
}

// ParseTypeName accepts "pkg/msg/Type" and the short "pkg/Type" form.
func ParseTypeName(full string) (TypeName, error) {
	front := strings.Index(full, typeSeparator)
	back := strings.LastIndex(full, typeSeparator)
	if front <= 0 || back == len(full)-1 {
		return TypeName{}, fmt.Errorf("%w: %q", ErrMalformedTypeName, full)
	}

	t := TypeName{
		Package:   full[:front],
		Namespace: DefaultNamespace,
		Name:      full[back+1:],
	}
	if back > front {
		middle := strings.Trim(full[front+1:back], typeSeparator)
		if middle != "" {
			t.Namespace = middle
		}
	}
	if strings.ContainsAny(t.Package+t.Name, " \t\n") {
		return TypeName{}, fmt.Errorf("%w: %q", ErrMalformedTypeName, full)
	}
	return t, nil
}

func (t TypeName) String() string {
	return t.Package + typeSeparator + t.Namespace + typeSeparator + t.Name
}

// Symbol is the name a library exports the descriptor under.
func (t TypeName) Symbol(identifier string) string {
	return identifier + symbolInfix + t.Package + "__" +
		strings.ReplaceAll(t.Namespace, typeSeparator, "__") + "__" + t.Name
}
