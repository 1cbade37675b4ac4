package external

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed curated_default.yaml
var defaultCurated []byte

// CuratedListing is one hand-maintained entry of a curated YAML file.
type CuratedListing struct {
	ID          string     `yaml:"id"`
	Title       string     `yaml:"title"`
	Description string     `yaml:"description"`
	URL         string     `yaml:"url"`
	Locality    string     `yaml:"locality"`
	Tags        []string   `yaml:"tags"`
	Starts      *time.Time `yaml:"starts,omitempty"`
}

// CuratedFile is the layout of a curated listings file.
type CuratedFile struct {
	Sources []struct {
		Name     string           `yaml:"name"`
		Listings []CuratedListing `yaml:"listings"`
	} `yaml:"sources"`
}

// Curated serves a fixed list of listings for one source name.
type Curated struct {
	name     string
	listings []CuratedListing
}

// NewCurated returns a source serving listings under name.
func NewCurated(name string, listings []CuratedListing) *Curated {
	return &Curated{name: name, listings: append([]CuratedListing(nil), listings...)}
}

// Name identifies the source in event ids.
func (c *Curated) Name() string {
	return c.name
}

// ListEvents returns the listings that pass filter.
func (c *Curated) ListEvents(ctx context.Context, filter Filter) ([]Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	descriptors := make([]Descriptor, 0, len(c.listings))
	for _, l := range c.listings {
		d := Descriptor{
			ID:          l.ID,
			Name:        map[string]string{"en": l.Title},
			Description: map[string]string{"intro": l.Description},
			Locality:    l.Locality,
			InfoURL:     l.URL,
			Tags:        l.Tags,
		}
		if l.Starts != nil {
			starts := l.Starts.UTC()
			d.StartsAt = &starts
		}
		descriptors = append(descriptors, d)
	}
	return filter.Apply(descriptors), nil
}

// ParseCurated decodes a curated YAML document into one source per entry.
func ParseCurated(data []byte) ([]Source, error) {
	var file CuratedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("curated listings: %w", err)
	}
	sources := make([]Source, 0, len(file.Sources))
	for i, s := range file.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("curated listings: source %d has no name", i+1)
		}
		sources = append(sources, NewCurated(s.Name, s.Listings))
	}
	return sources, nil
}

// LoadCurated reads curated sources from path. An empty path yields the
// built-in Turku listings.
func LoadCurated(path string) ([]Source, error) {
	if path == "" {
		return ParseCurated(defaultCurated)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("curated listings: %w", err)
	}
	return ParseCurated(data)
}
