package content

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/jmcleod/quill/internal/uuid"
	"github.com/jmcleod/quill/storage"
)

type CategoryInput struct {
	Name    string
	Icon    string
	Order   int
	Version uint64
}

func (in CategoryInput) normalize() (CategoryInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Icon = strings.TrimSpace(in.Icon)
	if in.Name == "" {
		return in, invalid("name", "category.nameRequired")
	}
	return in, nil
}

func (s *Store) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	in, err := in.normalize()
	if err != nil {
		return Category{}, err
	}
	now := s.now()
	c := Category{ID: uuid.New(), Name: in.Name, Icon: in.Icon, Order: in.Order, CreatedAt: now, UpdatedAt: now}
	if err := save(repoWriter{ctx, s.repo}, categoryType, c.ID, 0, c); err != nil {
		return Category{}, err
	}
	c.Version = 1
	return c, nil
}

func (s *Store) UpdateCategory(ctx context.Context, id string, in CategoryInput) (Category, error) {
	in, err := in.normalize()
	if err != nil {
		return Category{}, err
	}
	var c Category
	err = s.batch(ctx, func(tx storage.BatchTx) error {
		c, err = load[Category](tx, categoryType, id)
		if err != nil {
			return err
		}
		if err := checkVersion(in.Version, c.Version); err != nil {
			return err
		}
		c.Name, c.Icon, c.Order = in.Name, in.Icon, in.Order
		c.UpdatedAt = s.now()
		if err := save(tx, categoryType, id, c.Version, c); err != nil {
			return err
		}
		c.Version++
		return nil
	})
	if err != nil {
		return Category{}, err
	}
	return c, nil
}

// DeleteCategory removes a category that no project references.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.batch(ctx, func(tx storage.BatchTx) error {
		if _, err := load[Category](tx, categoryType, id); err != nil {
			return err
		}
		projects, err := loadAll[Project](tx, projectType)
		if err != nil {
			return err
		}
		n := 0
		for _, p := range projects {
			if p.CategoryID == id {
				n++
			}
		}
		if n > 0 {
			return &CategoryInUseError{Projects: n}
		}
		return tx.Delete(categoryType, id)
	})
}

func (s *Store) GetCategory(ctx context.Context, id string) (Category, error) {
	return load[Category](s.reader(ctx), categoryType, id)
}

// ListCategories returns categories by ascending Order, then name.
func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := loadAll[Category](s.reader(ctx), categoryType)
	if err != nil {
		return nil, err
	}
	sortCategories(categories)
	return categories, nil
}

func sortCategories(categories []Category) {
	slices.SortStableFunc(categories, func(a, b Category) int {
		if c := cmp.Compare(a.Order, b.Order); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// CategoriesWithProjects returns every category with its projects, as
// shown on the public project page.
func (s *Store) CategoriesWithProjects(ctx context.Context) ([]CategoryWithProjects, error) {
	r := s.reader(ctx)
	categories, err := loadAll[Category](r, categoryType)
	if err != nil {
		return nil, err
	}
	projects, err := loadAll[Project](r, projectType)
	if err != nil {
		return nil, err
	}
	sortCategories(categories)
	out := make([]CategoryWithProjects, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryWithProjects{
			Category: c,
			Projects: filterProjects(slices.Clone(projects), ProjectFilter{CategoryID: c.ID}),
		})
	}
	return out, nil
}
