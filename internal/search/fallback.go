package search

// FallbackResults returns the fixed placeholder set substituted when the
// submission endpoint fails and the fallback policy is enabled. The tuples
// are deliberately stable so failures are obvious in golden output and the
// interface stays browsable without any backend.
func FallbackResults() []Result {
	return []Result{
		{
			ID:         "1",
			Title:      "Obscure Italian Flute Break '74",
			Similarity: 0.98,
			URL:        "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3",
		},
		{
			ID:         "2",
			Title:      "Dusty Jazz Drum Loop",
			Similarity: 0.85,
			URL:        "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-2.mp3",
		},
	}
}
