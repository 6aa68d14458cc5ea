package cache

// tagIndex maps a tag to the set of keys carrying it.
// key ∈ idx[tag] iff tag ∈ entry(key).tags; empty buckets are pruned.
// Guarded by the owning shard's lock.
type tagIndex map[string]map[string]struct{}

func (t tagIndex) add(key string, tags []string) {
	for _, tag := range tags {
		bucket := t[tag]
		if bucket == nil {
			bucket = make(map[string]struct{})
			t[tag] = bucket
		}
		bucket[key] = struct{}{}
	}
}

func (t tagIndex) remove(key string, tags []string) {
	for _, tag := range tags {
		bucket := t[tag]
		if bucket == nil {
			continue
		}
		delete(bucket, key)
		if len(bucket) == 0 {
			delete(t, tag)
		}
	}
}

// keys returns a copy of the keys tagged with tag.
func (t tagIndex) keys(tag string) []string {
	bucket := t[tag]
	if len(bucket) == 0 {
		return nil
	}
	out := make([]string, 0, len(bucket))
	for k := range bucket {
		out = append(out, k)
	}
	return out
}
