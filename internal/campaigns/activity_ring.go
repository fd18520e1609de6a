package campaigns

// activityRing is a fixed-capacity buffer that overwrites its oldest entry once full.
type activityRing struct {
	entries []Activity
	start   int
	size    int
}

func newActivityRing(capacity int) *activityRing {
	return &activityRing{entries: make([]Activity, capacity)}
}

func (r *activityRing) push(activity Activity) {
	capacity := len(r.entries)
	if r.size < capacity {
		r.entries[(r.start+r.size)%capacity] = activity
		r.size++
		return
	}
	r.entries[r.start] = activity
	r.start = (r.start + 1) % capacity
}

// newestFirst copies the buffered entries, most recent first.
func (r *activityRing) newestFirst() []Activity {
	capacity := len(r.entries)
	result := make([]Activity, r.size)
	for index := 0; index < r.size; index++ {
		result[index] = r.entries[(r.start+r.size-1-index)%capacity]
	}
	return result
}
