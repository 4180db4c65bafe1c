package typesupport

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register("sensor_msgs", Msg("LaserScan", "float32[] ranges\n"))
	r.Register("std_msgs", Msg("String", "string data\n"))
	return r
}

func TestLoaderResolves(t *testing.T) {
	loader := NewLoader(testRegistry())

	lib, err := loader.GetTypesupportLibrary("sensor_msgs/msg/LaserScan", TypesupportCpp)
	require.NoError(t, err)
	defer lib.Release()
	assert.Equal(t, "sensor_msgs", lib.Package)
	assert.Equal(t, "registry", lib.Location)

	h, err := loader.GetTypesupportHandle("sensor_msgs/msg/LaserScan", TypesupportCpp, lib)
	require.NoError(t, err)
	assert.Equal(t, TypeName{"sensor_msgs", "msg", "LaserScan"}, h.Type)
	assert.Equal(t, "float32[] ranges\n", h.Definition)
	assert.Contains(t, h.Hash, hashPrefix)
	assert.Equal(t, []string{h.Symbol}, lib.Symbols())
}

func TestLoaderSharesLibraries(t *testing.T) {
	loader := NewLoader(testRegistry())

	a, err := loader.GetTypesupportLibrary("sensor_msgs/msg/LaserScan", TypesupportCpp)
	require.NoError(t, err)
	b, err := loader.GetTypesupportLibrary("sensor_msgs/LaserScan", TypesupportCpp)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 2, a.RefCount())
	assert.Equal(t, 1, loader.Loaded())

	other, err := loader.GetTypesupportLibrary("sensor_msgs/msg/LaserScan", TypesupportIntrospectionCpp)
	require.NoError(t, err)
	assert.NotSame(t, a, other)
	other.Release()

	a.Release()
	assert.False(t, b.Unloaded())
	b.Release()
	assert.True(t, b.Unloaded())
	assert.Equal(t, 0, loader.Loaded())

	// Release after unload is harmless and Acquire is a programming error.
	b.Release()
	assert.Panics(t, func() { b.Acquire() })

	c, err := loader.GetTypesupportLibrary("sensor_msgs/msg/LaserScan", TypesupportCpp)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	c.Acquire()
	assert.Equal(t, 2, c.RefCount())
	c.Release()
	c.Release()
}

func TestLoaderResolutionErrors(t *testing.T) {
	loader := NewLoader(testRegistry())

	tests := []struct {
		name       string
		typeName   string
		identifier string
		cause      error
	}{
		{"malformed", "LaserScan", TypesupportCpp, ErrMalformedTypeName},
		{"unknown package", "nav_msgs/msg/Odometry", TypesupportCpp, ErrPackageNotFound},
		{"unknown identifier", "std_msgs/msg/String", "rosidl_typesupport_fastrtps", ErrUnsupportedIdentifier},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := loader.GetTypesupportLibrary(tt.typeName, tt.identifier)
			assert.Nil(t, lib)
			assert.True(t, errors.Is(err, ErrTypeResolution))
			assert.True(t, errors.Is(err, tt.cause), "got %v", err)

			var re *TypeResolutionError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.typeName, re.TypeName)
		})
	}

	lib, err := loader.GetTypesupportLibrary("std_msgs/msg/String", TypesupportCpp)
	require.NoError(t, err)
	defer lib.Release()

	_, err = loader.GetTypesupportHandle("std_msgs/msg/Missing", TypesupportCpp, lib)
	assert.True(t, errors.Is(err, ErrSymbolNotFound))

	_, err = loader.GetTypesupportHandle("sensor_msgs/msg/LaserScan", TypesupportCpp, lib)
	assert.True(t, errors.Is(err, ErrLibraryMismatch))

	_, err = loader.GetTypesupportHandle("std_msgs/msg/String", TypesupportCpp, nil)
	assert.True(t, errors.Is(err, ErrLibraryMismatch))
}

func TestInstallTreeSource(t *testing.T) {
	prefix, err := ioutil.TempDir("", "install")
	require.NoError(t, err)
	defer os.RemoveAll(prefix)

	index := filepath.Join(prefix, "share", "ament_index", "resource_index", "packages")
	require.NoError(t, os.MkdirAll(index, 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(index, "nav_msgs"), nil, 0o644))

	msgDir := filepath.Join(prefix, "share", "nav_msgs", "msg")
	require.NoError(t, os.MkdirAll(msgDir, 0o755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(msgDir, "Odometry.msg"), []byte("string child_frame_id\n"), 0o644))
	require.NoError(t, ioutil.WriteFile(filepath.Join(prefix, "share", "nav_msgs", "package.xml"), []byte("<package/>"), 0o644))

	// share dir without an index marker is not an installed package
	require.NoError(t, os.MkdirAll(filepath.Join(prefix, "share", "ghost_msgs", "msg"), 0o755))

	loader := NewLoader(testRegistry(), NewInstallTree(filepath.Join(prefix, "missing"), prefix))

	lib, err := loader.GetTypesupportLibrary("nav_msgs/msg/Odometry", TypesupportCpp)
	require.NoError(t, err)
	defer lib.Release()
	assert.Equal(t, filepath.Join(prefix, "share", "nav_msgs"), lib.Location)

	h, err := loader.GetTypesupportHandle("nav_msgs/msg/Odometry", TypesupportCpp, lib)
	require.NoError(t, err)
	assert.Equal(t, "string child_frame_id\n", h.Definition)

	_, err = loader.GetTypesupportLibrary("ghost_msgs/msg/Ghost", TypesupportCpp)
	assert.True(t, errors.Is(err, ErrPackageNotFound))
}

func TestInstallTreeFromEnv(t *testing.T) {
	old := os.Getenv(PrefixPathEnv)
	defer os.Setenv(PrefixPathEnv, old)

	require.NoError(t, os.Setenv(PrefixPathEnv, "/opt/ros/humble"+string(os.PathListSeparator)+"/ws/install"))
	assert.Equal(t, []string{"/opt/ros/humble", "/ws/install"}, InstallTreeFromEnv().Prefixes)
}
