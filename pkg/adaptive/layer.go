package adaptive

// SimulcastLayer is one rung of the fixed simulcast ladder.
type SimulcastLayer struct {
	SpatialLayer      int
	TemporalLayer     int
	TargetBitrateKbps int
	Width             int
	Height            int
	FrameRate         int
}

// DefaultLadder is the fixed simulcast ladder, lowest rung first.
func DefaultLadder() []SimulcastLayer {
	return []SimulcastLayer{
		{0, 0, 100, 320, 180, 15},
		{1, 0, 300, 640, 360, 15},
		{1, 1, 500, 640, 360, 30},
		{2, 0, 800, 1280, 720, 15},
		{2, 1, 1500, 1280, 720, 30},
		{2, 2, 2500, 1280, 720, 60},
		{3, 0, 2000, 1920, 1080, 15},
		{3, 1, 3000, 1920, 1080, 30},
		{3, 2, 4500, 1920, 1080, 60},
	}
}

// maxSpatialFor maps a quality grade to the spatial layer cap.
func maxSpatialFor(quality Quality) int {
	switch quality {
	case QualityExcellent:
		return 3
	case QualityGood:
		return 2
	case QualityPoor:
		return 1
	default:
		return 0
	}
}
