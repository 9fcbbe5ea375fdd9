package tracking

import (
	"sort"
	"time"

	"github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/idlewatch/pkg/idgen"
	"github.com/cyclopcam/idlewatch/pkg/nn"
	"github.com/cyclopcam/idlewatch/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

type RegistrySettings struct {
	MaxDistance          float32 // Maximum distance (pixels) between a track and a detection for them to be matched
	MaxDisappearedFrames int     // A track is retired once it has gone unmatched for more than this many consecutive frames
	HistorySize          int           // Initial size of each track's position history (rounded up to a power of 2)
	HistoryWindow        time.Duration // Position samples younger than this are retained, growing the history if necessary
	Verbose              bool          // Log track creation and retirement
}

func DefaultRegistrySettings() RegistrySettings {
	return RegistrySettings{
		MaxDistance:          100,
		MaxDisappearedFrames: 30,
		HistorySize:          512,
		HistoryWindow:        30 * time.Second,
	}
}

// Registry owns the set of live tracks, and associates each frame's detections with them.
// A Registry is not safe for concurrent use. It is owned by a single pipeline loop.
type Registry struct {
	Log      logs.Log
	settings RegistrySettings
	tracks   []*Track // Ordered by ID, ascending
	nextID   idgen.Int64
}

// A possible pairing of a track with a detection
type candidatePair struct {
	track    int // index into Registry.tracks
	det      int // index into detections
	trackID  int64
	distance float32
}

func NewRegistry(logger logs.Log, settings RegistrySettings) *Registry {
	return &Registry{
		Log:      logger,
		settings: settings,
	}
}

// SetSettings takes effect on the next call to Update.
// History size only applies to tracks created after this call.
func (r *Registry) SetSettings(settings RegistrySettings) {
	r.settings = settings
	for _, t := range r.tracks {
		t.window = settings.HistoryWindow
	}
}

func (r *Registry) Settings() RegistrySettings {
	return r.settings
}

// Update associates the detections of a new frame with the existing tracks.
// It returns the current centroid of every track that was seen in this frame (both matched and newly created).
//
// Matching is greedy: the globally closest (track, detection) pair is bound first, then the next closest
// among the remaining, and so on, until the closest remaining pair is further than MaxDistance.
// Equal distances are resolved in favour of the lower track ID.
func (r *Registry) Update(detections []nn.Detection, frameIndex int64, timestamp time.Time) map[int64]nn.Point {
	pairs := r.candidatePairs(detections)
	sort.Slice(pairs, func(i, j int) bool {
		a, b := &pairs[i], &pairs[j]
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		return a.det < b.det
	})

	trackHasMatch := make([]bool, len(r.tracks))
	detHasMatch := make([]bool, len(detections))
	seen := make(map[int64]nn.Point, len(detections))

	for _, p := range pairs {
		if trackHasMatch[p.track] || detHasMatch[p.det] {
			continue
		}
		trackHasMatch[p.track] = true
		detHasMatch[p.det] = true
		track := r.tracks[p.track]
		track.observe(&detections[p.det], frameIndex, timestamp)
		seen[track.ID] = track.Centroid()
	}

	// Age out tracks that we didn't see
	remaining := r.tracks[:0]
	for i, track := range r.tracks {
		if !trackHasMatch[i] {
			track.DisappearedCount++
			if track.DisappearedCount > r.settings.MaxDisappearedFrames {
				if r.settings.Verbose {
					r.Log.Infof("Track %v retired after %v frames unseen", track.ID, track.DisappearedCount)
				}
				continue
			}
		}
		remaining = append(remaining, track)
	}
	for i := len(remaining); i < len(r.tracks); i++ {
		r.tracks[i] = nil
	}
	r.tracks = remaining

	// New tracks are appended in detection order, and IDs only ever increase,
	// so r.tracks stays sorted by ID.
	historySize := perfstats.NextPowerOf2(max(r.settings.HistorySize, 2))
	for i := range detections {
		if detHasMatch[i] {
			continue
		}
		det := &detections[i]
		track := newTrack(r.nextID.Next(), historySize, r.settings.HistoryWindow, det, frameIndex, timestamp)
		r.tracks = append(r.tracks, track)
		seen[track.ID] = track.Centroid()
		if r.settings.Verbose {
			r.Log.Infof("Track %v new at %.0f,%.0f", track.ID, det.Centroid.X, det.Centroid.Y)
		}
	}

	return seen
}

// Find all (track, detection) pairs that are within MaxDistance of each other.
// Pairs further apart than that can never be matched, so a spatial index lets us skip
// most of the full distance matrix when there are many people in the frame.
func (r *Registry) candidatePairs(detections []nn.Detection) []candidatePair {
	if len(r.tracks) == 0 || len(detections) == 0 {
		return nil
	}
	maxDist := r.settings.MaxDistance

	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(r.tracks))
	for _, t := range r.tracks {
		c := t.Centroid()
		fb.Add(c.X, c.Y, c.X, c.Y)
	}
	fb.Finish()

	// Pad the search box slightly so that floating point rounding can't exclude a pair that lies
	// exactly at MaxDistance. The precise test is done on the true distance below.
	pad := maxDist + 1
	pairs := []candidatePair{}
	nearby := []int{}
	for j := range detections {
		d := detections[j].Centroid
		nearby = fb.SearchFast(d.X-pad, d.Y-pad, d.X+pad, d.Y+pad, nearby)
		for _, i := range nearby {
			dist := r.tracks[i].Centroid().Distance(d)
			if dist <= maxDist {
				pairs = append(pairs, candidatePair{
					track:    i,
					det:      j,
					trackID:  r.tracks[i].ID,
					distance: dist,
				})
			}
		}
	}
	return pairs
}

// Tracks returns the live tracks, ordered by ID.
// The slice is owned by the registry, and is only valid until the next Update.
func (r *Registry) Tracks() []*Track {
	return r.tracks
}

// Track returns the track with the given ID, or nil
func (r *Registry) Track(id int64) *Track {
	i := sort.Search(len(r.tracks), func(i int) bool { return r.tracks[i].ID >= id })
	if i < len(r.tracks) && r.tracks[i].ID == id {
		return r.tracks[i]
	}
	return nil
}

func (r *Registry) Len() int {
	return len(r.tracks)
}

// Reset discards all tracks. IDs continue from where they left off.
func (r *Registry) Reset() {
	r.tracks = nil
}
