package psfbin

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/psfsim/internal/monitoring"
	"github.com/banshee-data/psfsim/internal/psf"
)

// ErrMissingBin is returned when a key was never enumerated. It indicates a
// missing enumeration step and is never replaced by a default PSF.
var ErrMissingBin = errors.New("psfbin: missing bin")

// Entry is the cached PSF of one bin and channel. PSF is square, odd-sized
// and sums to 1. Radius is the screen-space blur radius in pixels.
type Entry struct {
	Radius  float64
	Defocus float64
	PSF     *psf.Image
}

// ComputeFunc produces the entry of one bin and channel.
type ComputeFunc func(ctx context.Context, key Key, channel int) (Entry, error)

// Cache stores entries as angle → dioptre → per-channel entries. It is
// written only by Populate and is safe for concurrent reads afterwards.
type Cache struct {
	bins     map[[2]float64]map[float64][]Entry
	keys     []Key
	channels int
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{bins: make(map[[2]float64]map[float64][]Entry)}
}

// Populate computes every channel of every key, in sorted key order, from
// the calling goroutine. Keys already present are skipped.
func (c *Cache) Populate(ctx context.Context, keys []Key, channels int, compute ComputeFunc) error {
	if channels <= 0 {
		return fmt.Errorf("psfbin: invalid channel count %d", channels)
	}
	if c.channels != 0 && c.channels != channels {
		return fmt.Errorf("psfbin: cache holds %d channels, asked for %d", c.channels, channels)
	}
	c.channels = channels

	sorted := SortKeys(append([]Key(nil), keys...))
	for i, key := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := c.bins[key.Angle][key.Dioptre]; ok {
			continue
		}
		entries := make([]Entry, channels)
		for ch := 0; ch < channels; ch++ {
			e, err := compute(ctx, key, ch)
			if err != nil {
				return fmt.Errorf("bin %v channel %d: %w", key, ch, err)
			}
			if e.PSF == nil {
				return fmt.Errorf("bin %v channel %d: nil psf", key, ch)
			}
			if err := e.PSF.Validate(); err != nil {
				return fmt.Errorf("bin %v channel %d: %w", key, ch, err)
			}
			entries[ch] = e
			monitoring.Tracef("[PsfBins] %d/%d %v ch=%d radius=%.3f defocus=%.3f size=%d",
				i+1, len(sorted), key, ch, e.Radius, e.Defocus, e.PSF.Rows)
		}
		byDioptre, ok := c.bins[key.Angle]
		if !ok {
			byDioptre = make(map[float64][]Entry)
			c.bins[key.Angle] = byDioptre
		}
		byDioptre[key.Dioptre] = entries
		c.keys = append(c.keys, key)
	}
	c.keys = SortKeys(c.keys)
	monitoring.Diagf("[PsfBins] populated %d bins x %d channels", len(c.keys), channels)
	return nil
}

// Entry returns the cached entry for key and channel.
func (c *Cache) Entry(key Key, channel int) (Entry, error) {
	entries, ok := c.bins[key.Angle][key.Dioptre]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %v", ErrMissingBin, key)
	}
	if channel < 0 || channel >= len(entries) {
		return Entry{}, fmt.Errorf("%w: %v channel %d", ErrMissingBin, key, channel)
	}
	return entries[channel], nil
}

// Entries returns every channel of key.
func (c *Cache) Entries(key Key) ([]Entry, error) {
	entries, ok := c.bins[key.Angle][key.Dioptre]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrMissingBin, key)
	}
	return entries, nil
}

// MaxBlurRadius returns max(ceil(radius)+1) over all entries, the gather
// window half-size in pixels.
func (c *Cache) MaxBlurRadius() int {
	best := 0
	for _, byDioptre := range c.bins {
		for _, entries := range byDioptre {
			for _, e := range entries {
				best = max(best, int(math.Ceil(e.Radius))+1)
			}
		}
	}
	return best
}

// NumBins counts distinct (angle, dioptre) pairs.
func (c *Cache) NumBins() int { return len(c.keys) }

// Channels returns the channel count fixed by the first Populate.
func (c *Cache) Channels() int { return c.channels }

// Keys returns the sorted keys in the cache.
func (c *Cache) Keys() []Key { return append([]Key(nil), c.keys...) }
