// obi-searchstub is a development stand-in for the search backend. It
// answers POST /search with a deterministic ranking over a small fixed
// catalog so the daemon can be exercised end to end without the real
// service.
package main

import (
	"flag"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
)

type catalogEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	tags  string
}

// The catalog leans on publicly hosted demo tracks so result URLs are
// actually playable during development.
var catalog = []catalogEntry{
	{"1", "Obscure Italian Flute Break '74", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-1.mp3", "flute break funk italian rare groove"},
	{"2", "Dusty Jazz Drum Loop", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-2.mp3", "jazz drums loop dusty vinyl"},
	{"3", "Modular Synth Sweep", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-3.mp3", "synth sweep modular electronic"},
	{"4", "Upright Bass Walk", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-4.mp3", "bass upright walking jazz"},
	{"5", "Tape Hiss Ambience", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-5.mp3", "ambience tape hiss texture noise"},
	{"6", "Brass Section Stab", "https://www.soundhelix.com/examples/mp3/SoundHelix-Song-6.mp3", "brass stab horns funk"},
}

type scored struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Similarity float64 `json:"similarity"`
	URL        string  `json:"url"`
}

// rank scores the catalog deterministically: token overlap against the tag
// line, with an audio-derived hash nudging ties so uploads influence the
// order without any real analysis.
func rank(query string, audio []byte) []scored {
	tokens := strings.Fields(strings.ToLower(query))

	h := fnv.New32a()
	_, _ = h.Write(audio)
	seed := h.Sum32()

	out := make([]scored, 0, len(catalog))
	for i, e := range catalog {
		matches := 0
		for _, tok := range tokens {
			if strings.Contains(e.tags, tok) {
				matches++
			}
		}
		score := 0.2
		if len(tokens) > 0 {
			score = 0.2 + 0.75*float64(matches)/float64(len(tokens))
		}
		// Audio nudge: ±0.1, stable per upload and per entry.
		if len(audio) > 0 {
			nudge := float64((seed>>uint(i%8))%21)/100 - 0.1
			score += nudge
		}
		if score < 0.05 {
			score = 0.05
		}
		if score > 0.99 {
			score = 0.99
		}
		out = append(out, scored{ID: e.ID, Title: e.Title, Similarity: score, URL: e.URL})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Similarity > out[b].Similarity })
	if len(out) > 4 {
		out = out[:4]
	}
	return out
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	if os.Getenv("OBI_DEBUG") != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), gin.Logger())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	engine.POST("/search", func(c *gin.Context) {
		query := c.PostForm("query")

		var audio []byte
		if file, err := c.FormFile("audio"); err == nil {
			f, err := file.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio part"})
				return
			}
			audio, err = io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable audio part"})
				return
			}
		}

		if strings.TrimSpace(query) == "" && len(audio) == 0 {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "empty submission"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"results": rank(query, audio)})
	})

	log.Printf("[obi-searchstub] listening on %s", *addr)
	if err := engine.Run(*addr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
