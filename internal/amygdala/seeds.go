package amygdala

import (
	"encoding/json"
	"math"
	"strings"
)

// seedSignalWindow is how many trailing signal lines are tagged per round.
const seedSignalWindow = 8

// seedSignalTruncChars truncates each tagged signal line.
const seedSignalTruncChars = 180

// SeedTag is one heuristically tagged signal line. The JSON field names are
// part of the round-message contract.
type SeedTag struct {
	Signal      string   `json:"signal"`
	Valence     float64  `json:"valence"`
	Arousal     float64  `json:"arousal"`
	Tags        []string `json:"tags"`
	HighArousal bool     `json:"high_arousal"`
}

var (
	positiveCues = []string{
		"great", "love", "thanks", "good", "nice", "awesome",
	}
	negativeCues = []string{
		"angry", "frustrated", "annoyed", "hate", "bad", "broken",
		"error", "failed",
	}
	contrastCues = []string{
		" but ", " though ", " however ", " keeps ", " still ",
	}
	urgencyCues = []string{
		"urgent", "asap", "now", "immediately", "broken", "error",
		"failed",
	}
	riskCues = []string{"deadline", "late", "overdue", "risk", "lost"}
)

func containsAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}

	return false
}

// HeuristicSeedTags computes deterministic valence/arousal tags for the last
// few non-empty lines of recentSignals. Returns the tags and their JSON
// rendering for the round message, "(none)" when there are no signal lines.
func HeuristicSeedTags(recentSignals string) ([]SeedTag, string) {
	var lines []string
	for _, line := range strings.Split(recentSignals, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > seedSignalWindow {
		lines = lines[len(lines)-seedSignalWindow:]
	}

	var seeds []SeedTag
	for _, line := range lines {
		seeds = append(seeds, tagLine(line))
	}
	if len(seeds) == 0 {
		return nil, "(none)"
	}

	encoded, err := json.MarshalIndent(seeds, "", "  ")
	if err != nil {
		return seeds, "(none)"
	}

	return seeds, string(encoded)
}

// tagLine scores one signal line by lexical cues.
func tagLine(line string) SeedTag {
	lower := strings.ToLower(line)

	arousal := 0.2
	valence := 0.0
	var tags []string

	hasPositive := containsAny(lower, positiveCues)
	hasNegative := containsAny(lower, negativeCues)
	hasContrast := containsAny(lower, contrastCues)
	hasSarcasm := strings.Contains(lower, "yeah right") ||
		strings.Contains(lower, "sure...") ||
		(strings.Contains(lower, "great job") && hasNegative)

	if containsAny(lower, urgencyCues) {
		arousal += 0.4
		tags = append(tags, "urgency")
	}
	if hasNegative {
		arousal += 0.25
		valence -= 0.5
		tags = append(tags, "negative_affect")
	}
	if hasPositive {
		valence += 0.5
		tags = append(tags, "positive_affect")
	}

	// Contrast or sarcasm means positive words may be framing frustration.
	if hasPositive && (hasNegative || hasContrast || hasSarcasm) {
		valence -= 0.6
		arousal += 0.1
		tags = append(tags, "mixed_or_ironic")
	}
	if containsAny(lower, riskCues) {
		arousal += 0.2
		tags = append(tags, "risk")
	}

	arousal = math.Min(1.0, math.Max(0.0, arousal))
	valence = math.Min(1.0, math.Max(-1.0, valence))
	if len(tags) == 0 {
		tags = []string{"neutral"}
	}

	signal := line
	if len(signal) > seedSignalTruncChars {
		signal = signal[:seedSignalTruncChars]
	}

	return SeedTag{
		Signal:      signal,
		Valence:     round2(valence),
		Arousal:     round2(arousal),
		Tags:        tags,
		HighArousal: arousal >= HighArousalThreshold,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
