// Package themes groups lyrics into recurring themes with k-means over their
// TF-IDF vectors.
package themes

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
	"github.com/samber/lo"

	"github.com/justestif/go-genre-classifier/internal/features"
)

// Config holds theme clustering parameters.
type Config struct {
	NumThemes      int // Number of clusters to create (default: 5)
	MinClusterSize int // Minimum songs per theme (smaller clusters become outliers)
	MaxTerms       int // Highest-DF vocabulary terms used as coordinates (default: 50)
}

// DefaultConfig returns the recommended default configuration.
func DefaultConfig() Config {
	return Config{
		NumThemes:      5,
		MinClusterSize: 3,
		MaxTerms:       50,
	}
}

// Vocabulary is the part of a fitted vectorizer used to name themes.
type Vocabulary interface {
	Vocabulary() []string
	TopColumns(n int) []int
}

// Theme is a cluster of songs with similar lyrics.
type Theme struct {
	Name       string   // "love & baby & tonight"
	TopTerms   []string // Top 3 centroid terms
	Rows       []int    // Input rows in this theme, ascending
	Genre      string   // Most common genre among Rows
	GenreShare float64  // Fraction of Rows labelled Genre
}

// Size returns the number of songs in the theme.
func (t Theme) Size() int {
	return len(t.Rows)
}

// songObservation wraps one projected row to implement clusters.Observation.
type songObservation struct {
	row    int
	coords clusters.Coordinates
}

func (o songObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o songObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// Detect clusters vectors into themes. genres[i] labels vectors[i]. Rows
// with no weight on any coordinate term, and rows in clusters smaller than
// MinClusterSize, count as outliers. Themes are ordered largest first.
func Detect(vectors []features.Vector, genres []string, vocab Vocabulary, cfg Config) ([]Theme, int, error) {
	if len(vectors) == 0 {
		return nil, 0, nil
	}
	if len(genres) != len(vectors) {
		return nil, 0, fmt.Errorf("themes: %d vectors but %d genres", len(vectors), len(genres))
	}

	if cfg.NumThemes <= 0 {
		cfg.NumThemes = DefaultConfig().NumThemes
	}
	if cfg.MaxTerms <= 0 {
		cfg.MaxTerms = DefaultConfig().MaxTerms
	}

	columns := vocab.TopColumns(cfg.MaxTerms)
	all := vocab.Vocabulary()
	terms := lo.Map(columns, func(c int, _ int) string { return all[c] })

	var obs clusters.Observations
	outliers := 0
	for i, v := range vectors {
		coords := clusters.Coordinates(v.Project(columns))
		if lo.EveryBy(coords, func(x float64) bool { return x == 0 }) {
			outliers++
			continue
		}
		obs = append(obs, songObservation{row: i, coords: coords})
	}

	if len(obs) < cfg.NumThemes {
		return nil, len(vectors), nil
	}

	km := kmeans.New()
	result, err := km.Partition(obs, cfg.NumThemes)
	if err != nil {
		return nil, len(vectors), fmt.Errorf("themes: k-means: %w", err)
	}

	var themes []Theme
	for _, cluster := range result {
		rows := make([]int, 0, len(cluster.Observations))
		for _, o := range cluster.Observations {
			if so, ok := o.(songObservation); ok {
				rows = append(rows, so.row)
			}
		}

		if len(rows) == 0 || len(rows) < cfg.MinClusterSize {
			outliers += len(rows)
			continue
		}
		slices.Sort(rows)

		top := topTerms(cluster.Center, terms, 3)
		genre, share := dominantGenre(rows, genres)
		themes = append(themes, Theme{
			Name:       themeName(top),
			TopTerms:   top,
			Rows:       rows,
			Genre:      genre,
			GenreShare: share,
		})
	}

	slices.SortStableFunc(themes, func(a, b Theme) int {
		return b.Size() - a.Size()
	})
	return themes, outliers, nil
}

// topTerms returns the n heaviest terms of a centroid.
func topTerms(centroid clusters.Coordinates, terms []string, n int) []string {
	if len(centroid) == 0 || len(terms) == 0 {
		return nil
	}

	type termWeight struct {
		term   string
		weight float64
	}
	weights := make([]termWeight, len(terms))
	for i, term := range terms {
		w := 0.0
		if i < len(centroid) {
			w = centroid[i]
		}
		weights[i] = termWeight{term: term, weight: w}
	}

	sort.SliceStable(weights, func(i, j int) bool {
		return weights[i].weight > weights[j].weight
	})

	out := make([]string, 0, n)
	for i := 0; i < len(weights) && len(out) < n; i++ {
		if weights[i].weight > 0 {
			out = append(out, weights[i].term)
		}
	}
	return out
}

// dominantGenre returns the most frequent genre among rows; ties go to the
// lexicographically smaller genre.
func dominantGenre(rows []int, genres []string) (string, float64) {
	counts := lo.CountValues(lo.Map(rows, func(r int, _ int) string { return genres[r] }))

	best, bestN := "", 0
	for g, n := range counts {
		if n > bestN || (n == bestN && g < best) {
			best, bestN = g, n
		}
	}
	return best, float64(bestN) / float64(len(rows))
}

func themeName(top []string) string {
	if len(top) == 0 {
		return "Mixed"
	}
	return strings.Join(top, " & ")
}

// FormatSummary returns a human-readable summary of detected themes.
func FormatSummary(themes []Theme, outliers int) string {
	var sb strings.Builder

	total := outliers
	for _, t := range themes {
		total += t.Size()
	}

	if len(themes) == 0 {
		fmt.Fprintf(&sb, "No themes found from %d songs", total)
		if outliers > 0 {
			fmt.Fprintf(&sb, " (%d outliers skipped)", outliers)
		}
		sb.WriteString("\n")
		return sb.String()
	}

	word := "theme"
	if len(themes) > 1 {
		word = "themes"
	}
	fmt.Fprintf(&sb, "Found %d %s from %d songs", len(themes), word, total)
	if outliers > 0 {
		fmt.Fprintf(&sb, " (%d outliers skipped)", outliers)
	}
	sb.WriteString("\n")

	for i, t := range themes {
		fmt.Fprintf(&sb, "\nTheme %d: %s (%d songs)\n", i+1, t.Name, t.Size())
		fmt.Fprintf(&sb, "  mostly %s (%.0f%%)\n", t.Genre, t.GenreShare*100)
	}
	return sb.String()
}
