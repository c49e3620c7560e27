package content

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jmcleod/quill/storage/memory"
)

// tickingClock returns a clock that advances one second per call, so
// records created in sequence get distinct timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(memory.NewRepository(), WithBcryptCost(bcrypt.MinCost), WithClock(tickingClock()))
}

func TestSplitTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"commas", "go, web ,cms", []string{"go", "web", "cms"}},
		{"newlines", "go\nweb\r\ncms", []string{"go", "web", "cms"}},
		{"full width comma", "前端，后端", []string{"前端", "后端"}},
		{"duplicates and blanks", "go,,go, ,web", []string{"go", "web"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitTags(tt.raw))
		})
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short", 10))
	assert.Equal(t, "你好", Excerpt("你好世界", 2))
	assert.Equal(t, "abc", Excerpt("abcdef", 3))
}

func TestPosts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreatePost(ctx, PostInput{Title: "  ", Content: "body"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "title", verr.Field)
	assert.ErrorIs(t, err, ErrValidation)

	first, err := s.CreatePost(ctx, PostInput{Title: "First", Content: "hello world", Tags: "go, web"})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, "hello world", first.Intro, "intro defaults to an excerpt of the content")
	assert.Equal(t, []string{"go", "web"}, first.Tags)

	second, err := s.CreatePost(ctx, PostInput{Title: "Second", Content: "more", Tags: "notes"})
	require.NoError(t, err)
	featured, err := s.CreatePost(ctx, PostInput{Title: "Pinned", Content: "x", Featured: true})
	require.NoError(t, err)

	posts, err := s.ListPosts(ctx, PostFilter{})
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, featured.ID, posts[0].ID)
	assert.Equal(t, second.ID, posts[1].ID)
	assert.Equal(t, first.ID, posts[2].ID)

	posts, err = s.ListPosts(ctx, PostFilter{Query: "WEB"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, first.ID, posts[0].ID)

	posts, err = s.ListPosts(ctx, PostFilter{Tag: "notes"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, second.ID, posts[0].ID)

	updated, err := s.UpdatePost(ctx, first.ID, PostInput{Title: "First!", Content: "changed", Version: first.Version})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), updated.Version)
	assert.Equal(t, first.CreatedAt, updated.CreatedAt)

	_, err = s.UpdatePost(ctx, first.ID, PostInput{Title: "Stale", Content: "x", Version: first.Version})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetPost(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "First!", got.Title)

	require.NoError(t, s.DeletePost(ctx, first.ID))
	_, err = s.GetPost(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeletePost(ctx, first.ID), ErrNotFound)
	_, err = s.UpdatePost(ctx, "missing", PostInput{Title: "x", Content: "y"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProjectsAndCategories(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	tools, err := s.CreateCategory(ctx, CategoryInput{Name: "Tools", Order: 2})
	require.NoError(t, err)
	apps, err := s.CreateCategory(ctx, CategoryInput{Name: "Apps", Order: 1})
	require.NoError(t, err)
	_, err = s.CreateCategory(ctx, CategoryInput{Name: ""})
	assert.ErrorIs(t, err, ErrValidation)

	categories, err := s.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, apps.ID, categories[0].ID)

	_, err = s.CreateProject(ctx, ProjectInput{Name: "Orphan", CategoryID: "nope"})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	cli, err := s.CreateProject(ctx, ProjectInput{Name: "cli", CategoryID: tools.ID})
	require.NoError(t, err)
	lib, err := s.CreateProject(ctx, ProjectInput{Name: "lib", CategoryID: tools.ID, Featured: true})
	require.NoError(t, err)

	projects, err := s.ListProjects(ctx, ProjectFilter{CategoryID: tools.ID})
	require.NoError(t, err)
	require.Len(t, projects, 2)
	assert.Equal(t, lib.ID, projects[0].ID, "newest first")

	projects, err = s.ListProjects(ctx, ProjectFilter{FeaturedOnly: true})
	require.NoError(t, err)
	require.Len(t, projects, 1)

	projects, err = s.ListProjects(ctx, ProjectFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, projects, 1)

	grouped, err := s.CategoriesWithProjects(ctx)
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Empty(t, grouped[0].Projects)
	assert.Len(t, grouped[1].Projects, 2)

	err = s.DeleteCategory(ctx, tools.ID)
	var inUse *CategoryInUseError
	require.ErrorAs(t, err, &inUse)
	assert.Equal(t, 2, inUse.Projects)
	assert.ErrorIs(t, err, ErrCategoryInUse)

	moved, err := s.UpdateProject(ctx, cli.ID, ProjectInput{Name: "cli", CategoryID: apps.ID})
	require.NoError(t, err)
	assert.Equal(t, apps.ID, moved.CategoryID)
	_, err = s.UpdateProject(ctx, cli.ID, ProjectInput{Name: "cli", CategoryID: "gone"})
	assert.ErrorIs(t, err, ErrCategoryNotFound)

	require.NoError(t, s.DeleteProject(ctx, lib.ID))
	require.NoError(t, s.DeleteCategory(ctx, tools.ID))
	assert.ErrorIs(t, s.DeleteCategory(ctx, tools.ID), ErrNotFound)

	renamed, err := s.UpdateCategory(ctx, apps.ID, CategoryInput{Name: "Applications", Order: 5, Version: apps.Version})
	require.NoError(t, err)
	assert.Equal(t, "Applications", renamed.Name)
	assert.Equal(t, uint64(2), renamed.Version)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Projects: 1, Categories: 1}, st)
}
