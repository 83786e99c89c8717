// Package models holds the headline, cluster and tag types shared by the
// clustering engine and its collaborators.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Article is a single headline from one source. Link is its identity.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	Description string    `json:"description,omitempty"`
	Source      string    `json:"source"`
}

// StoryCluster groups headlines from several sources that cover the same story.
// Primary is the first article seen; Related never repeats Primary's link.
type StoryCluster struct {
	ID      string    `json:"id"`
	Primary Article   `json:"primary"`
	Related []Article `json:"related"`
}

// NewStoryCluster promotes an article to the primary of a new cluster.
// The ID is derived from the primary link so repeated runs produce the same pool.
func NewStoryCluster(primary Article) *StoryCluster {
	return &StoryCluster{
		ID:      uuid.NewSHA1(uuid.NameSpaceURL, []byte(primary.Link)).String(),
		Primary: primary,
		Related: []Article{},
	}
}

// RepresentativeDate is the primary's publication time.
func (c *StoryCluster) RepresentativeDate() time.Time { return c.Primary.PublishedAt }

// RepresentativeSource is the primary's source.
func (c *StoryCluster) RepresentativeSource() string { return c.Primary.Source }

// Attach appends a related article unless its link is already a member.
func (c *StoryCluster) Attach(a Article) bool {
	if a.Link == c.Primary.Link {
		return false
	}
	for _, r := range c.Related {
		if r.Link == a.Link {
			return false
		}
	}
	c.Related = append(c.Related, a)
	return true
}

// Sources lists the distinct sources in the cluster, primary first.
func (c *StoryCluster) Sources() []string {
	seen := map[string]bool{c.Primary.Source: true}
	out := []string{c.Primary.Source}
	for _, r := range c.Related {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}

// TagEntry is one trending tag with the links of the articles that carry it.
type TagEntry struct {
	Tag   string   `json:"tag"`
	Count int      `json:"count"`
	Links []string `json:"links"`
	Hot   bool     `json:"hot,omitempty"`
}
