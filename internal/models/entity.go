package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Kind tags the variant held by an Entity.
type Kind string

const (
	KindArticle Kind = "article"
	KindCluster Kind = "cluster"
)

// Entity is either a standalone Article or a StoryCluster. Exactly one of the
// two pointers is set; use the constructors rather than building it by hand.
type Entity struct {
	article *Article
	cluster *StoryCluster
}

// ArticleEntity wraps a singleton article.
func ArticleEntity(a Article) Entity {
	return Entity{article: &a}
}

// ClusterEntity wraps a story cluster.
func ClusterEntity(c *StoryCluster) Entity {
	return Entity{cluster: c}
}

// Kind reports the held variant. A cluster without related articles is
// presented as a plain article.
func (e Entity) Kind() Kind {
	if e.cluster != nil && len(e.cluster.Related) > 0 {
		return KindCluster
	}
	return KindArticle
}

// IsCluster is shorthand for Kind() == KindCluster.
func (e Entity) IsCluster() bool { return e.Kind() == KindCluster }

// Cluster returns the held cluster, or nil for singletons.
func (e Entity) Cluster() *StoryCluster { return e.cluster }

// Primary returns the article that represents the entity.
func (e Entity) Primary() Article {
	switch {
	case e.cluster != nil:
		return e.cluster.Primary
	case e.article != nil:
		return *e.article
	default:
		return Article{}
	}
}

// Title is the primary article's headline.
func (e Entity) Title() string { return e.Primary().Title }

// Link is the primary article's link, which identifies the entity.
func (e Entity) Link() string { return e.Primary().Link }

// Source is the display name of the primary article's feed.
func (e Entity) Source() string { return e.Primary().Source }

// Date is the primary article's publish time, used for ordering.
func (e Entity) Date() time.Time { return e.Primary().PublishedAt }

// IsZero reports whether the entity holds neither an article nor a cluster.
func (e Entity) IsZero() bool { return e.article == nil && e.cluster == nil }

// Members returns every article in the entity, primary first.
func (e Entity) Members() []Article {
	if e.cluster == nil {
		if e.article == nil {
			return nil
		}
		return []Article{*e.article}
	}
	out := make([]Article, 0, 1+len(e.cluster.Related))
	out = append(out, e.cluster.Primary)
	return append(out, e.cluster.Related...)
}

// Links returns the link of every member.
func (e Entity) Links() []string {
	members := e.Members()
	out := make([]string, len(members))
	for i, m := range members {
		out[i] = m.Link
	}
	return out
}

// Promote turns a singleton into a cluster in place and returns it.
func (e *Entity) Promote() *StoryCluster {
	if e.cluster != nil {
		return e.cluster
	}
	c := NewStoryCluster(e.Primary())
	e.article = nil
	e.cluster = c
	return c
}

type entityJSON struct {
	Type    Kind          `json:"type"`
	Article *Article      `json:"article,omitempty"`
	Cluster *StoryCluster `json:"cluster,omitempty"`
}

// MarshalJSON encodes the entity with an explicit type tag.
func (e Entity) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return nil, errors.New("models: marshal of empty entity")
	}
	if e.IsCluster() {
		return json.Marshal(entityJSON{Type: KindCluster, Cluster: e.cluster})
	}
	a := e.Primary()
	return json.Marshal(entityJSON{Type: KindArticle, Article: &a})
}

// UnmarshalJSON decodes a tagged entity.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var raw entityJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case KindArticle:
		if raw.Article == nil {
			return errors.New("models: article entity without article")
		}
		*e = ArticleEntity(*raw.Article)
	case KindCluster:
		if raw.Cluster == nil {
			return errors.New("models: cluster entity without cluster")
		}
		if raw.Cluster.Related == nil {
			raw.Cluster.Related = []Article{}
		}
		*e = ClusterEntity(raw.Cluster)
	default:
		return fmt.Errorf("models: unknown entity type %q", raw.Type)
	}
	return nil
}

// ClusterPool is the clustered view of a headline set, newest first.
type ClusterPool []Entity

// Articles flattens the pool into its member articles.
func (p ClusterPool) Articles() []Article {
	var out []Article
	for _, e := range p {
		out = append(out, e.Members()...)
	}
	return out
}

// ClusterCount counts entities holding more than one article.
func (p ClusterPool) ClusterCount() int {
	n := 0
	for _, e := range p {
		if e.IsCluster() {
			n++
		}
	}
	return n
}
