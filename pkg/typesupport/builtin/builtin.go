// Package builtin registers the definitions of the common interface packages
// with typesupport.DefaultRegistry. Import it for its side effect.
package builtin

import "github.com/silverswords/rclgeneric/pkg/typesupport"

func init() {
	typesupport.Register("builtin_interfaces",
		typesupport.Msg("Time", "int32 sec\nuint32 nanosec\n"),
		typesupport.Msg("Duration", "int32 sec\nuint32 nanosec\n"),
	)

	typesupport.Register("std_msgs",
		typesupport.Msg("Header", "builtin_interfaces/Time stamp\nstring frame_id\n"),
		typesupport.Msg("String", "string data\n"),
		typesupport.Msg("Bool", "bool data\n"),
		typesupport.Msg("Int32", "int32 data\n"),
		typesupport.Msg("Float64", "float64 data\n"),
		typesupport.Msg("Empty", ""),
	)

	typesupport.Register("geometry_msgs",
		typesupport.Msg("Vector3", "float64 x\nfloat64 y\nfloat64 z\n"),
		typesupport.Msg("Point", "float64 x\nfloat64 y\nfloat64 z\n"),
		typesupport.Msg("Quaternion", "float64 x 0\nfloat64 y 0\nfloat64 z 0\nfloat64 w 1\n"),
		typesupport.Msg("Pose", "Point position\nQuaternion orientation\n"),
		typesupport.Msg("Twist", "Vector3 linear\nVector3 angular\n"),
	)

	typesupport.Register("sensor_msgs",
		typesupport.Msg("LaserScan", `std_msgs/Header header
float32 angle_min
float32 angle_max
float32 angle_increment
float32 time_increment
float32 scan_time
float32 range_min
float32 range_max
float32[] ranges
float32[] intensities
`),
		typesupport.Msg("Imu", `std_msgs/Header header
geometry_msgs/Quaternion orientation
float64[9] orientation_covariance
geometry_msgs/Vector3 angular_velocity
float64[9] angular_velocity_covariance
geometry_msgs/Vector3 linear_acceleration
float64[9] linear_acceleration_covariance
`),
		typesupport.Msg("Image", `std_msgs/Header header
uint32 height
uint32 width
string encoding
uint8 is_bigendian
uint32 step
uint8[] data
`),
	)
}
