package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/karuna-backend/internal/metrics"
	"github.com/AnshRaj112/karuna-backend/internal/models"
	"github.com/AnshRaj112/karuna-backend/internal/store"
	"github.com/AnshRaj112/karuna-backend/pkg/utils"
)

// PostInput describes a new post.
type PostInput struct {
	Type        models.PostType
	Title       string
	Description string
	Tags        []string
	City        string
}

// PostFilter narrows ListPosts. Empty fields match everything; set fields
// combine with AND.
type PostFilter struct {
	Type models.PostType
	City string
	Tag  string
	Q    string // case-insensitive substring of title + description
}

func (f PostFilter) matches(p models.ServicePost) bool {
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.City != "" && p.City != f.City {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	if f.Q != "" && !strings.Contains(strings.ToLower(p.Title+p.Description), strings.ToLower(f.Q)) {
		return false
	}
	return true
}

// CatalogService publishes and searches posts.
type CatalogService struct {
	identity *IdentityService
	posts    *store.Collection[models.ServicePost]
	now      func() time.Time
	log      *logrus.Entry
}

// CreatePost publishes a post owned by the signed-in member.
func (s *CatalogService) CreatePost(ctx context.Context, sess Session, in PostInput) (post models.ServicePost, err error) {
	defer func() { metrics.RecordOperation("create_post", err) }()

	owner, err := s.identity.RequireUser(ctx, sess)
	if err != nil {
		return models.ServicePost{}, err
	}
	if !in.Type.Valid() {
		return models.ServicePost{}, invalid("type", "Type must be offer or request")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.ServicePost{}, invalid("title", "Title is required")
	}
	if err := checkText("title", in.Title); err != nil {
		return models.ServicePost{}, err
	}
	if err := checkText("description", in.Description); err != nil {
		return models.ServicePost{}, err
	}
	if err := checkText("city", in.City); err != nil {
		return models.ServicePost{}, err
	}
	if err := checkText("tags", in.Tags...); err != nil {
		return models.ServicePost{}, err
	}

	now := s.now()
	post = models.ServicePost{
		ID:          newID(),
		OwnerID:     owner.ID,
		Type:        in.Type,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Tags:        utils.TrimTags(in.Tags),
		City:        strings.TrimSpace(in.City),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = s.posts.Update(ctx, func(posts []models.ServicePost) ([]models.ServicePost, error) {
		return append([]models.ServicePost{post}, posts...), nil
	})
	if err != nil {
		return models.ServicePost{}, err
	}

	s.log.WithFields(logrus.Fields{"post_id": post.ID, "owner_id": owner.ID}).Info("post created")
	return post, nil
}

// ListPosts returns matching posts, newest first.
func (s *CatalogService) ListPosts(ctx context.Context, filter PostFilter) ([]models.ServicePost, error) {
	posts, err := s.posts.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ServicePost, 0, len(posts))
	for _, p := range posts {
		if filter.matches(p) {
			out = append(out, p)
		}
	}
	sortPostsNewestFirst(out)
	return out, nil
}

// ListPostsByOwner returns one member's posts, newest first.
func (s *CatalogService) ListPostsByOwner(ctx context.Context, ownerID string) ([]models.ServicePost, error) {
	posts, err := s.posts.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ServicePost, 0)
	for _, p := range posts {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sortPostsNewestFirst(out)
	return out, nil
}

// GetPostByID returns nil when id is unknown.
func (s *CatalogService) GetPostByID(ctx context.Context, id string) (*models.ServicePost, error) {
	posts, err := s.posts.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range posts {
		if posts[i].ID == id {
			return &posts[i], nil
		}
	}
	return nil, nil
}

// Stable, so posts created in the same instant keep their stored
// (most-recent-first) order.
func sortPostsNewestFirst(posts []models.ServicePost) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}
