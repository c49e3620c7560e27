package content

import (
	"context"
	"slices"
	"strings"

	"github.com/jmcleod/quill/internal/uuid"
	"github.com/jmcleod/quill/storage"
)

// PostInput is the editable part of a post. Tags is the raw, comma or
// newline separated list. Version, when non-zero, must match the stored
// version on update.
type PostInput struct {
	Title    string
	Intro    string
	Content  string
	Tags     string
	Featured bool
	Version  uint64
}

// PostFilter narrows ListPosts. Zero values match everything.
type PostFilter struct {
	Query        string
	Tag          string
	FeaturedOnly bool
}

func (in PostInput) normalize() (PostInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Intro = strings.TrimSpace(in.Intro)
	if in.Title == "" {
		return in, invalid("title", "post.titleRequired")
	}
	if in.Content == "" {
		return in, invalid("content", "post.contentRequired")
	}
	if in.Intro == "" {
		in.Intro = Excerpt(in.Content, introLength)
	}
	return in, nil
}

func (p *Post) apply(in PostInput) {
	p.Title = in.Title
	p.Intro = in.Intro
	p.Content = in.Content
	p.Tags = SplitTags(in.Tags)
	p.Featured = in.Featured
}

func (s *Store) CreatePost(ctx context.Context, in PostInput) (Post, error) {
	in, err := in.normalize()
	if err != nil {
		return Post{}, err
	}
	now := s.now()
	p := Post{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	p.apply(in)
	if err := save(repoWriter{ctx, s.repo}, postType, p.ID, 0, p); err != nil {
		return Post{}, err
	}
	p.Version = 1
	return p, nil
}

func (s *Store) UpdatePost(ctx context.Context, id string, in PostInput) (Post, error) {
	in, err := in.normalize()
	if err != nil {
		return Post{}, err
	}
	var p Post
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		p, err = load[Post](tx, postType, id)
		if err != nil {
			return err
		}
		if err := checkVersion(in.Version, p.Version); err != nil {
			return err
		}
		p.apply(in)
		p.UpdatedAt = s.now()
		if err := save(tx, postType, id, p.Version, p); err != nil {
			return err
		}
		p.Version++
		return nil
	})
	if err != nil {
		return Post{}, err
	}
	return p, nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, postType, id)
}

func (s *Store) GetPost(ctx context.Context, id string) (Post, error) {
	return load[Post](s.reader(ctx), postType, id)
}

// ListPosts returns matching posts, featured first and then most recently
// updated first.
func (s *Store) ListPosts(ctx context.Context, f PostFilter) ([]Post, error) {
	posts, err := loadAll[Post](s.reader(ctx), postType)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))
	posts = slices.DeleteFunc(posts, func(p Post) bool {
		if f.FeaturedOnly && !p.Featured {
			return true
		}
		if f.Tag != "" && !slices.Contains(p.Tags, f.Tag) {
			return true
		}
		return query != "" && !p.matches(query)
	})
	slices.SortStableFunc(posts, func(a, b Post) int {
		if a.Featured != b.Featured {
			if a.Featured {
				return -1
			}
			return 1
		}
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return posts, nil
}

func (p Post) matches(lowerQuery string) bool {
	if strings.Contains(strings.ToLower(p.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(p.Intro), lowerQuery) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), lowerQuery) {
			return true
		}
	}
	return false
}
