package playback

import "github.com/banshee-data/scanreplay/internal/scanlog"

// AnnotationIndex gives O(1) timestamp lookup of the poses and labelled
// detections carried in a dataset header, so frames can be annotated as
// they come out of the decode pool.
type AnnotationIndex struct {
	poses      map[int64]*scanlog.Pose
	detections map[int64][]scanlog.Detection
}

// NewAnnotationIndex builds an index over the given poses and detections.
func NewAnnotationIndex(poses []scanlog.Pose, detections []scanlog.Detection) *AnnotationIndex {
	ix := &AnnotationIndex{
		poses:      make(map[int64]*scanlog.Pose, len(poses)),
		detections: make(map[int64][]scanlog.Detection),
	}
	for i := range poses {
		ix.poses[poses[i].Timestamp] = &poses[i]
	}
	for _, d := range detections {
		ix.detections[d.Timestamp] = append(ix.detections[d.Timestamp], d)
	}
	return ix
}

// PoseAt returns the vehicle pose recorded at ts, or nil when none exists.
func (ix *AnnotationIndex) PoseAt(ts int64) *scanlog.Pose {
	if ix == nil {
		return nil
	}
	return ix.poses[ts]
}

// DetectionsAt returns the detections labelled at ts.
func (ix *AnnotationIndex) DetectionsAt(ts int64) []scanlog.Detection {
	if ix == nil {
		return nil
	}
	return ix.detections[ts]
}
