package builtin

import (
	"testing"

	"github.com/silverswords/rclgeneric/pkg/typesupport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTypesResolve(t *testing.T) {
	loader := typesupport.NewLoader()
	for _, name := range []string{
		"sensor_msgs/msg/LaserScan",
		"sensor_msgs/Imu",
		"std_msgs/msg/String",
		"geometry_msgs/msg/Twist",
		"builtin_interfaces/msg/Time",
	} {
		t.Run(name, func(t *testing.T) {
			lib, err := loader.GetTypesupportLibrary(name, typesupport.TypesupportCpp)
			require.NoError(t, err)
			defer lib.Release()

			h, err := loader.GetTypesupportHandle(name, typesupport.TypesupportCpp, lib)
			require.NoError(t, err)
			assert.NotEmpty(t, h.Hash)
		})
	}
}
