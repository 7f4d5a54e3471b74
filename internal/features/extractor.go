package features

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"sync"

	"github.com/flowlens/flowlens-agent/internal/timeline"
	"github.com/flowlens/flowlens-agent/internal/vision"
)

// MetadataStore supplies upstream-cataloged metadata for an asset. A nil map
// with a nil error means the asset has no metadata.
type MetadataStore interface {
	GetMetadata(ctx context.Context, assetID string) (map[string]any, error)
}

// Tag vocabularies for mood and energy classification. Small and fixed;
// unknown tags simply do not match.
var (
	positiveMoodTags = []string{
		"happy", "joy", "joyful", "fun", "bright", "exciting",
		"celebration", "love", "beautiful", "warm", "playful", "uplifting",
	}
	negativeMoodTags = []string{
		"sad", "dark", "gloomy", "angry", "fear", "tense",
		"lonely", "melancholy", "somber", "cold", "dramatic",
	}
	highEnergyTags = []string{
		"action", "fast", "dynamic", "energetic", "sport", "dance",
		"party", "running", "crowd",
	}
	lowEnergyTags = []string{
		"calm", "slow", "peaceful", "quiet", "still", "serene",
		"relaxing", "landscape",
	}
)

var visionValueRe = map[string]*regexp.Regexp{
	"motion":     regexp.MustCompile(`motion\s*=\s*([0-9]*\.?[0-9]+)`),
	"complexity": regexp.MustCompile(`complexity\s*=\s*([0-9]*\.?[0-9]+)`),
	"energy":     regexp.MustCompile(`energy\s*=\s*([0-9]*\.?[0-9]+)`),
}

const visionInstructions = "Rate the clip's visual motion, complexity and energy " +
	"on a 0.0-1.0 scale. Reply exactly as: motion=X.X, complexity=X.X, energy=X.X"

// Extractor derives clip features from the metadata store, memoized per
// asset identity in a session cache.
type Extractor struct {
	store       MetadataStore
	analyzer    vision.Analyzer
	cache       *Cache
	concurrency int
	logger      *slog.Logger
}

// NewExtractor builds an extractor. The analyzer may be nil, in which case
// the vision refinement step is skipped. concurrency bounds ExtractAll
// fan-out; values below 1 are treated as 1.
func NewExtractor(store MetadataStore, analyzer vision.Analyzer, cache *Cache, concurrency int, logger *slog.Logger) *Extractor {
	if cache == nil {
		cache = NewCache()
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{
		store:       store,
		analyzer:    analyzer,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Extract returns the features for one clip's asset. Repeated calls for the
// same asset short-circuit through the session cache.
func (e *Extractor) Extract(ctx context.Context, clip timeline.Clip) Features {
	if f, ok := e.cache.Get(clip.AssetID); ok {
		return f
	}

	f := Defaults()

	var meta map[string]any
	if e.store != nil {
		m, err := e.store.GetMetadata(ctx, clip.AssetID)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("metadata lookup failed, using defaults", "asset_id", clip.AssetID, "error", err)
			}
		} else {
			meta = m
		}
	}
	if meta != nil {
		applyMetadata(&f, meta)
	}

	if e.analyzer != nil && clip.AssetPath != "" {
		reply, err := e.analyzer.Analyze(ctx, clip.AssetPath, visionInstructions)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("vision analysis failed, keeping defaults", "asset_id", clip.AssetID, "error", err)
			}
		} else {
			applyVisionReply(&f, reply)
		}
	}

	e.cache.Put(clip.AssetID, f)
	return f
}

// Prime records features for an asset ahead of extraction. Subsequent
// Extract calls for the asset short-circuit through the session cache.
// Used for generated clips that have no backing asset to inspect.
func (e *Extractor) Prime(assetID string, f Features) {
	e.cache.Put(assetID, f)
}

// ExtractAll fans extraction out across clips under the concurrency cap and
// returns the results index-aligned with the input. Later pipeline stages
// assume positional alignment with the timeline's clip list.
func (e *Extractor) ExtractAll(ctx context.Context, clips []timeline.Clip) []Features {
	out := make([]Features, len(clips))
	if len(clips) == 0 {
		return out
	}

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup
	for i := range clips {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = e.Extract(ctx, clips[i])
		}(i)
	}
	wg.Wait()
	return out
}

func applyMetadata(f *Features, meta map[string]any) {
	if colors := toColorList(meta["dominant_colors"]); len(colors) > 0 {
		f.DominantColors = colors
	}
	if b, ok := toFloat(meta["brightness"]); ok {
		f.Brightness = clamp01(b)
	}
	tags := toStringList(meta["semantic_tags"])
	if len(tags) == 0 {
		return
	}
	f.Tags = tags

	f.Mood = moodFromTags(tags)
	f.Energy = energyFromTags(tags)
}

func moodFromTags(tags []string) float64 {
	score := 0
	for _, tag := range tags {
		if containsTag(positiveMoodTags, tag) {
			score++
		}
		if containsTag(negativeMoodTags, tag) {
			score--
		}
	}
	return clamp(float64(score)/3.0, -1, 1)
}

func energyFromTags(tags []string) float64 {
	energy := 0.5
	for _, tag := range tags {
		if containsTag(highEnergyTags, tag) {
			energy += 0.2
		}
		if containsTag(lowEnergyTags, tag) {
			energy -= 0.2
		}
	}
	return clamp01(energy)
}

// applyVisionReply parses the analyzer's free-text reply for the fixed
// motion=/complexity=/energy= pattern. Unparseable values are ignored.
func applyVisionReply(f *Features, reply string) {
	if v, ok := parseVisionValue(reply, "motion"); ok {
		f.Motion = clamp01(v)
	}
	if v, ok := parseVisionValue(reply, "complexity"); ok {
		f.Complexity = clamp01(v)
	}
	if v, ok := parseVisionValue(reply, "energy"); ok {
		f.Energy = clamp01(v)
	}
}

func parseVisionValue(reply, key string) (float64, bool) {
	m := visionValueRe[key].FindStringSubmatch(reply)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func containsTag(vocab []string, tag string) bool {
	for _, v := range vocab {
		if v == tag {
			return true
		}
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// toColorList accepts [][3]number shapes as produced by JSON metadata.
func toColorList(v any) []RGB {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []RGB
	for _, item := range list {
		triple, ok := item.([]any)
		if !ok || len(triple) != 3 {
			continue
		}
		r, okR := toFloat(triple[0])
		g, okG := toFloat(triple[1])
		b, okB := toFloat(triple[2])
		if !okR || !okG || !okB {
			continue
		}
		out = append(out, RGB{R: clampByte(r), G: clampByte(g), B: clampByte(b)})
	}
	return out
}

func clampByte(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
