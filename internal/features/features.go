// Package features derives per-clip perceptual features from cached asset
// metadata, with an optional vision-analysis refinement. Extraction never
// fails: missing or degraded inputs fall back to neutral defaults.
package features

import "sync"

// RGB is one dominant color, 0-255 per channel.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Features describes one asset as the flow detector sees it.
type Features struct {
	DominantColors []RGB     `json:"dominant_colors"`
	Brightness     float64   `json:"brightness"`
	Contrast       float64   `json:"contrast"`
	Motion         float64   `json:"motion"`
	Complexity     float64   `json:"complexity"`
	Mood           float64   `json:"mood"`
	Energy         float64   `json:"energy"`
	StyleEmbedding []float64 `json:"style_embedding,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
}

// Defaults returns the neutral feature set used when nothing is known
// about an asset.
func Defaults() Features {
	return Features{
		DominantColors: []RGB{{R: 128, G: 128, B: 128}},
		Brightness:     0.5,
		Contrast:       0.5,
		Motion:         0.3,
		Complexity:     0.5,
		Mood:           0,
		Energy:         0.5,
	}
}

// ForEnergyIntent returns the neutral feature set pinned to the energy
// level an intent names. Unknown intents stay at the neutral default.
func ForEnergyIntent(intent string) Features {
	f := Defaults()
	switch intent {
	case "high":
		f.Energy = 0.9
	case "low":
		f.Energy = 0.1
	}
	return f
}

// Cache memoizes features per asset identity for one session. Population is
// idempotent, so concurrent duplicate writes are harmless.
type Cache struct {
	mu sync.RWMutex
	m  map[string]Features
}

func NewCache() *Cache {
	return &Cache{m: make(map[string]Features)}
}

func (c *Cache) Get(assetID string) (Features, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.m[assetID]
	return f, ok
}

func (c *Cache) Put(assetID string, f Features) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[assetID] = f
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
