package icm20602

// Rotation describes the mounting orientation of the sensor relative to
// the body frame. Raw axis values are rotated before calibration so that
// offsets and scales are always expressed in body frame.
type Rotation int

const (
	RotationNone Rotation = iota
	RotationYaw90
	RotationYaw180
	RotationYaw270
	RotationRoll180
	RotationRoll180Yaw90
	RotationRoll180Yaw180
	RotationRoll180Yaw270
)

var rotationNames = map[Rotation]string{
	RotationNone:          "none",
	RotationYaw90:         "yaw90",
	RotationYaw180:        "yaw180",
	RotationYaw270:        "yaw270",
	RotationRoll180:       "roll180",
	RotationRoll180Yaw90:  "roll180yaw90",
	RotationRoll180Yaw180: "roll180yaw180",
	RotationRoll180Yaw270: "roll180yaw270",
}

func (r Rotation) String() string {
	if s, ok := rotationNames[r]; ok {
		return s
	}
	return "unknown"
}

// Apply rotates the vector from sensor frame to body frame.
func (r Rotation) Apply(x, y, z float64) (float64, float64, float64) {
	switch r {
	case RotationYaw90:
		return -y, x, z
	case RotationYaw180:
		return -x, -y, z
	case RotationYaw270:
		return y, -x, z
	case RotationRoll180:
		return x, -y, -z
	case RotationRoll180Yaw90:
		return y, x, -z
	case RotationRoll180Yaw180:
		return -x, y, -z
	case RotationRoll180Yaw270:
		return -y, -x, -z
	default:
		return x, y, z
	}
}
