package cache

import (
	"encoding/json"
	"fmt"
)

// sizeOf estimates the footprint of v. It never fails: a missing estimate
// becomes DefaultEntrySize.
func (c *cache[V]) sizeOf(v V) int64 {
	if c.opt.Size != nil {
		if n := c.opt.Size(v); n > 0 {
			return n
		}
		return 0
	}
	n, err := jsonSize(v)
	if err != nil {
		c.log.Debug("cache: size estimate failed, using default", "error", err, "default", DefaultEntrySize)
		return DefaultEntrySize
	}
	return n
}

// jsonSize measures v by its JSON encoding. Encoders can panic on exotic
// values (e.g. a MarshalJSON method with a bug); that is reported as an error.
func jsonSize(v any) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache: encode panicked: %v", r)
		}
	}()
	b, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}
