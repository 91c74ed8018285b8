package amygdala

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeuristicSeedTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		line        string
		wantTags    []string
		wantValence float64
		wantArousal float64
		wantHigh    bool
	}{
		{
			name:        "furious deploy failure",
			line:        "the deploy failed again and I am furious",
			wantTags:    []string{"urgency", "negative_affect"},
			wantValence: -0.5,
			wantArousal: 0.85,
			wantHigh:    true,
		},
		{
			name:        "plain gratitude",
			line:        "thanks, that was great",
			wantTags:    []string{"positive_affect"},
			wantValence: 0.5,
			wantArousal: 0.2,
			wantHigh:    false,
		},
		{
			name: "praise framing frustration",
			line: "great work but it still keeps crashing",
			wantTags: []string{
				"positive_affect", "mixed_or_ironic",
			},
			wantValence: -0.1,
			wantArousal: 0.3,
			wantHigh:    false,
		},
		{
			name:        "deadline pressure",
			line:        "the deadline is friday and we are late",
			wantTags:    []string{"risk"},
			wantValence: 0,
			wantArousal: 0.4,
			wantHigh:    false,
		},
		{
			name:        "neutral",
			line:        "see you at the meeting",
			wantTags:    []string{"neutral"},
			wantValence: 0,
			wantArousal: 0.2,
			wantHigh:    false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			seeds, encoded := HeuristicSeedTags(tc.line)
			require.Len(t, seeds, 1)

			seed := seeds[0]
			require.Equal(t, tc.wantTags, seed.Tags)
			require.InDelta(t, tc.wantValence, seed.Valence, 1e-9)
			require.InDelta(t, tc.wantArousal, seed.Arousal, 1e-9)
			require.Equal(t, tc.wantHigh, seed.HighArousal)

			// The rendering round-trips.
			var decoded []SeedTag
			require.NoError(t,
				json.Unmarshal([]byte(encoded), &decoded))
			require.Equal(t, seeds, decoded)
		})
	}
}

func TestHeuristicSeedTagsWindow(t *testing.T) {
	t.Parallel()

	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf("signal number %d", i))
	}

	seeds, _ := HeuristicSeedTags(strings.Join(lines, "\n"))
	require.Len(t, seeds, seedSignalWindow)
	require.Equal(t, "signal number 4", seeds[0].Signal)
	require.Equal(t, "signal number 11", seeds[len(seeds)-1].Signal)
}

func TestHeuristicSeedTagsEmpty(t *testing.T) {
	t.Parallel()

	seeds, encoded := HeuristicSeedTags("  \n\n  ")
	require.Nil(t, seeds)
	require.Equal(t, "(none)", encoded)
}

func TestHeuristicSeedTagsTruncatesSignal(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 400)
	seeds, _ := HeuristicSeedTags(long)
	require.Len(t, seeds, 1)
	require.Len(t, seeds[0].Signal, seedSignalTruncChars)
}
