package playback

import (
	"sync"

	"github.com/banshee-data/scanreplay/internal/scan"
	"github.com/banshee-data/scanreplay/internal/scanlog"
)

// Frame is one fully converted frame ready for presentation.
type Frame struct {
	Index        int
	Timestamp    int64
	Cloud        *scan.PointCloud
	PerSensor    map[int]*scan.PointCloud
	Pose         *scanlog.Pose
	Detections   []scanlog.Detection
	DecodeNanos  int64
	ConvertNanos int64
}

// frameCache holds converted frames keyed by frame index. Keys are
// write-once: the first insert for an index wins and later inserts for the
// same index are dropped, so a cached frame is never replaced mid-read.
type frameCache struct {
	mu        sync.RWMutex
	frames    map[int]*Frame
	numFrames int
}

func newFrameCache(numFrames int) *frameCache {
	return &frameCache{
		frames:    make(map[int]*Frame, numFrames),
		numFrames: numFrames,
	}
}

// get returns the cached frame for index, or nil when it has not been
// decoded yet.
func (c *frameCache) get(index int) *Frame {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames[index]
}

// put inserts f unless its index is already present. Reports whether the
// frame was stored.
func (c *frameCache) put(f *Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.frames[f.Index]; ok {
		return false
	}
	c.frames[f.Index] = f
	return true
}

func (c *frameCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.frames)
}

// frontier returns the highest index i such that frames 0..i are all
// cached, or -1 when frame 0 is still missing. Navigation clamps to this
// so stepping forward never lands on a hole.
func (c *frameCache) frontier() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := 0
	for ; i < c.numFrames; i++ {
		if _, ok := c.frames[i]; !ok {
			break
		}
	}
	return i - 1
}

// reset drops every cached frame.
func (c *frameCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = make(map[int]*Frame, c.numFrames)
}
