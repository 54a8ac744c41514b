package domain

// Tag keys attached to every pipeline.
const (
	TagKuid = "kuid"
	TagMode = "mode"
	TagRoom = "roomId"
)

// ModeTest marks echo test pipelines and replies. Test pipelines use it as room too.
const ModeTest = "test"

// Tags scope a pipeline for diagnostics and cleanup.
type Tags struct {
	Kuid string
	Mode string
	Room string
}

// TestTags returns the fixed tag set of a test pipeline created by engine kuid.
func TestTags(kuid string) Tags {
	return Tags{Kuid: kuid, Mode: ModeTest, Room: ModeTest}
}

func (t Tags) Pairs() [][2]string {
	return [][2]string{
		{TagKuid, t.Kuid},
		{TagMode, t.Mode},
		{TagRoom, t.Room},
	}
}
