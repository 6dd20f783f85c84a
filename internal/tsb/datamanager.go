package tsb

import (
	"math"
	"sort"

	"github.com/jmylchreest/tsb/internal/media"
)

// DataManager is the position ordered catalogue of the fragments of one
// track that are present in the store. It is not safe for concurrent use;
// the session serialises access with its read lock.
type DataManager struct {
	fragments []*Fragment
	current   *InitDescriptor
	// liveURLs counts descriptors per URL that are current or referenced.
	liveURLs map[string]int
}

// NewDataManager returns an empty index.
func NewDataManager() *DataManager {
	return &DataManager{liveURLs: make(map[string]int)}
}

// AddInitFragment registers the init fragment used by subsequently added
// fragments. It fails for an empty url, and the track then rejects fragments
// until a valid init fragment is registered.
func (dm *DataManager) AddInitFragment(url string, mediaType media.MediaType, info StreamInfo, periodID string, profileIndex int) bool {
	prev := dm.current
	if url == "" {
		dm.current = nil
		if prev != nil && prev.refs == 0 {
			dm.release(prev)
		}
		return false
	}
	dm.current = &InitDescriptor{
		url:          url,
		mediaType:    mediaType,
		streamInfo:   info,
		periodID:     periodID,
		profileIndex: profileIndex,
	}
	dm.liveURLs[url]++
	if prev != nil && prev.refs == 0 {
		dm.release(prev)
	}
	return true
}

// CurrentInit returns the init fragment new fragments are recorded against.
func (dm *DataManager) CurrentInit() *InitDescriptor {
	return dm.current
}

// AddFragment appends the fragment described by job. It fails when no init
// fragment has been registered or when the position does not strictly
// exceed the last recorded position.
func (dm *DataManager) AddFragment(job WriteJob, mediaType media.MediaType, discontinuity bool) bool {
	if dm.current == nil || job.Fragment == nil {
		return false
	}
	pos := job.Fragment.Position
	if last := dm.GetLastFragment(); last != nil && pos <= last.position {
		return false
	}

	f := &Fragment{
		url:           job.URL,
		mediaType:     mediaType,
		position:      pos,
		duration:      job.Fragment.Duration,
		pts:           job.PTS,
		discontinuity: discontinuity,
		periodID:      job.PeriodID,
		init:          dm.current,
	}
	if n := len(dm.fragments); n > 0 {
		last := dm.fragments[n-1]
		last.next = f
		f.prev = last
	}
	dm.current.refs++
	dm.fragments = append(dm.fragments, f)
	return true
}

// GetFragment returns the first fragment at or after position. When the
// position lies beyond the last fragment it returns nil and eos is true.
func (dm *DataManager) GetFragment(position float64) (f *Fragment, eos bool) {
	i := dm.search(position - media.Epsilon)
	if i == len(dm.fragments) {
		return nil, true
	}
	return dm.fragments[i], false
}

// GetNearestFragment returns the fragment whose position is closest to
// position. Ties resolve to the earlier fragment.
func (dm *DataManager) GetNearestFragment(position float64) *Fragment {
	n := len(dm.fragments)
	if n == 0 {
		return nil
	}
	i := dm.search(position)
	if i == 0 {
		return dm.fragments[0]
	}
	if i == n {
		return dm.fragments[n-1]
	}
	before, after := dm.fragments[i-1], dm.fragments[i]
	if math.Abs(after.position-position) < math.Abs(position-before.position) {
		return after
	}
	return before
}

// RemoveFragment removes the oldest fragment. initDeleted reports that its
// init fragment is no longer needed by the index and may be dropped from
// the store.
func (dm *DataManager) RemoveFragment() (removed *Fragment, initDeleted bool) {
	if len(dm.fragments) == 0 {
		return nil, false
	}
	removed = dm.fragments[0]
	dm.fragments[0] = nil
	dm.fragments = dm.fragments[1:]
	if len(dm.fragments) > 0 {
		dm.fragments[0].prev = nil
	}
	removed.next = nil

	if d := removed.init; d != nil {
		d.refs--
		if d.refs == 0 && d != dm.current {
			initDeleted = dm.release(d)
		}
	}
	return removed, initDeleted
}

// release drops a descriptor from the live set and reports whether its URL
// is no longer used by any other descriptor.
func (dm *DataManager) release(d *InitDescriptor) bool {
	dm.liveURLs[d.url]--
	if dm.liveURLs[d.url] > 0 {
		return false
	}
	delete(dm.liveURLs, d.url)
	return true
}

// GetFirstFragment returns the oldest fragment, or nil.
func (dm *DataManager) GetFirstFragment() *Fragment {
	if len(dm.fragments) == 0 {
		return nil
	}
	return dm.fragments[0]
}

// GetLastFragment returns the newest fragment, or nil.
func (dm *DataManager) GetLastFragment() *Fragment {
	if len(dm.fragments) == 0 {
		return nil
	}
	return dm.fragments[len(dm.fragments)-1]
}

// GetFirstFragmentPosition returns the position of the oldest fragment, or 0.
func (dm *DataManager) GetFirstFragmentPosition() float64 {
	if f := dm.GetFirstFragment(); f != nil {
		return f.position
	}
	return 0
}

// GetLastFragmentPosition returns the position of the newest fragment, or 0.
func (dm *DataManager) GetLastFragmentPosition() float64 {
	if f := dm.GetLastFragment(); f != nil {
		return f.position
	}
	return 0
}

// Count returns the number of indexed fragments.
func (dm *DataManager) Count() int {
	return len(dm.fragments)
}

// Flush drops every fragment and init registration.
func (dm *DataManager) Flush() {
	for i := range dm.fragments {
		dm.fragments[i].prev = nil
		dm.fragments[i].next = nil
		dm.fragments[i] = nil
	}
	dm.fragments = nil
	dm.current = nil
	dm.liveURLs = make(map[string]int)
}

// search returns the index of the first fragment positioned at or after pos.
func (dm *DataManager) search(pos float64) int {
	return sort.Search(len(dm.fragments), func(i int) bool {
		return dm.fragments[i].position >= pos
	})
}
