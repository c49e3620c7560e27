package content

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/jmcleod/quill/internal/uuid"
	"github.com/jmcleod/quill/storage"
)

type ProjectInput struct {
	Name        string
	Description string
	URL         string
	LinkName    string
	Tags        string
	CategoryID  string
	Featured    bool
	Version     uint64
}

// ProjectFilter narrows ListProjects. Limit <= 0 means no limit.
type ProjectFilter struct {
	CategoryID   string
	FeaturedOnly bool
	Limit        int
}

func (in ProjectInput) normalize() (ProjectInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.URL = strings.TrimSpace(in.URL)
	in.LinkName = strings.TrimSpace(in.LinkName)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	if in.Name == "" {
		return in, invalid("name", "project.nameRequired")
	}
	if in.CategoryID == "" {
		return in, invalid("category_id", "project.categoryRequired")
	}
	return in, nil
}

func (p *Project) apply(in ProjectInput) {
	p.Name = in.Name
	p.Description = in.Description
	p.URL = in.URL
	p.LinkName = in.LinkName
	p.Tags = SplitTags(in.Tags)
	p.CategoryID = in.CategoryID
	p.Featured = in.Featured
}

func requireCategory(r reader, id string) error {
	_, err := load[Category](r, categoryType, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", id, ErrCategoryNotFound)
	}
	return err
}

func (s *Store) CreateProject(ctx context.Context, in ProjectInput) (Project, error) {
	in, err := in.normalize()
	if err != nil {
		return Project{}, err
	}
	now := s.now()
	p := Project{ID: uuid.New(), CreatedAt: now, UpdatedAt: now}
	p.apply(in)
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		if err := requireCategory(tx, in.CategoryID); err != nil {
			return err
		}
		return save(tx, projectType, p.ID, 0, p)
	})
	if err != nil {
		return Project{}, err
	}
	p.Version = 1
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, in ProjectInput) (Project, error) {
	in, err := in.normalize()
	if err != nil {
		return Project{}, err
	}
	var p Project
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		p, err = load[Project](tx, projectType, id)
		if err != nil {
			return err
		}
		if err := checkVersion(in.Version, p.Version); err != nil {
			return err
		}
		if err := requireCategory(tx, in.CategoryID); err != nil {
			return err
		}
		p.apply(in)
		p.UpdatedAt = s.now()
		if err := save(tx, projectType, id, p.Version, p); err != nil {
			return err
		}
		p.Version++
		return nil
	})
	if err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.deleteRecord(ctx, projectType, id)
}

func (s *Store) GetProject(ctx context.Context, id string) (Project, error) {
	return load[Project](s.reader(ctx), projectType, id)
}

// ListProjects returns matching projects, newest first.
func (s *Store) ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error) {
	projects, err := loadAll[Project](s.reader(ctx), projectType)
	if err != nil {
		return nil, err
	}
	projects = filterProjects(projects, f)
	if f.Limit > 0 && len(projects) > f.Limit {
		projects = projects[:f.Limit]
	}
	return projects, nil
}

func filterProjects(projects []Project, f ProjectFilter) []Project {
	projects = slices.DeleteFunc(projects, func(p Project) bool {
		return (f.FeaturedOnly && !p.Featured) || (f.CategoryID != "" && p.CategoryID != f.CategoryID)
	})
	slices.SortStableFunc(projects, func(a, b Project) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return projects
}
