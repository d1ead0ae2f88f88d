// Package seed fills a data backend with demo communities, posts, comments
// and likes for development.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"

	"nexora/internal/models"
	"nexora/internal/observability"
	"nexora/internal/repository"
)

// Options controls how much data is created.
type Options struct {
	Communities     int
	Posts           int
	CommentsPerPost int
	LikesPerPost    int
	// Users is the size of the synthetic author pool.
	Users int
	// Seed makes the generated content reproducible; zero picks a random one.
	Seed int64
}

// DefaultOptions is a small but browsable data set.
var DefaultOptions = Options{
	Communities:     5,
	Posts:           40,
	CommentsPerPost: 4,
	LikesPerPost:    6,
	Users:           12,
}

// Summary counts what a run created.
type Summary struct {
	Communities int
	Posts       int
	Comments    int
	Likes       int
}

type author struct {
	id     string
	name   string
	avatar string
}

// Seeder writes demo data through the repository layer, so it works against
// either data backend.
type Seeder struct {
	repos repository.Set
	faker *gofakeit.Faker
}

// NewSeeder creates a Seeder over repos.
func NewSeeder(repos repository.Set, seed int64) *Seeder {
	return &Seeder{repos: repos, faker: gofakeit.New(seed)}
}

// Run creates the data described by opts.
func (s *Seeder) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary
	logger := observability.Component("seed")

	users := s.authors(opts.Users)

	communityIDs := make([]int64, 0, opts.Communities)
	for i := 0; i < opts.Communities; i++ {
		c, err := s.repos.Communities.Create(ctx, &models.NewCommunity{
			Name:        fmt.Sprintf("%s %s", s.faker.HipsterWord(), s.faker.Noun()),
			Description: s.faker.Sentence(10),
		})
		if err != nil {
			return sum, fmt.Errorf("create community: %w", err)
		}
		communityIDs = append(communityIDs, c.ID)
		sum.Communities++
	}
	logger.Info("communities created", "count", sum.Communities)

	for i := 0; i < opts.Posts; i++ {
		by := users[s.faker.Number(0, len(users)-1)]
		in := &models.NewPost{
			Title:     s.faker.Sentence(5),
			Content:   s.faker.Paragraph(1, 3, 8, "\n"),
			ImageURL:  fmt.Sprintf("https://picsum.photos/seed/%s/800/600", s.faker.UUID()),
			AvatarURL: &by.avatar,
		}
		// Roughly one post in five stays outside any community.
		if len(communityIDs) > 0 && s.faker.Number(1, 5) > 1 {
			id := communityIDs[s.faker.Number(0, len(communityIDs)-1)]
			in.CommunityID = &id
		}

		post, err := s.repos.Posts.Create(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("create post: %w", err)
		}
		sum.Posts++

		n, err := s.comments(ctx, post.ID, users, opts.CommentsPerPost)
		sum.Comments += n
		if err != nil {
			return sum, err
		}

		n, err = s.likes(ctx, post.ID, users, opts.LikesPerPost)
		sum.Likes += n
		if err != nil {
			return sum, err
		}
	}

	logger.Info("seeding complete",
		"posts", sum.Posts, "comments", sum.Comments, "likes", sum.Likes)
	return sum, nil
}

func (s *Seeder) authors(n int) []author {
	if n <= 0 {
		n = 1
	}
	out := make([]author, n)
	for i := range out {
		name := s.faker.Username()
		out[i] = author{
			id:     s.faker.UUID(),
			name:   name,
			avatar: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", name),
		}
	}
	return out
}

// comments adds up to max comments; about a third reply to an earlier one.
func (s *Seeder) comments(ctx context.Context, postID int64, users []author, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}
	var ids []int64
	count := s.faker.Number(0, max)
	for i := 0; i < count; i++ {
		by := users[s.faker.Number(0, len(users)-1)]
		in := &models.NewComment{
			PostID:    postID,
			UserID:    by.id,
			Author:    by.name,
			AvatarURL: &by.avatar,
			Content:   s.faker.Sentence(12),
		}
		if len(ids) > 0 && s.faker.Number(1, 3) == 1 {
			parent := ids[s.faker.Number(0, len(ids)-1)]
			in.ParentCommentID = &parent
		}
		c, err := s.repos.Comments.Create(ctx, in)
		if err != nil {
			return i, fmt.Errorf("create comment: %w", err)
		}
		ids = append(ids, c.ID)
	}
	return count, nil
}

func (s *Seeder) likes(ctx context.Context, postID int64, users []author, max int) (int, error) {
	if max > len(users) {
		max = len(users)
	}
	if max <= 0 {
		return 0, nil
	}
	count := 0
	for _, i := range s.faker.Rand.Perm(len(users))[:s.faker.Number(0, max)] {
		if err := s.repos.Likes.Create(ctx, postID, users[i].id); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				continue
			}
			return count, fmt.Errorf("create like: %w", err)
		}
		count++
	}
	return count, nil
}

// Clean removes all rows from a direct database, children first.
func Clean(db *gorm.DB) error {
	for _, model := range []any{&models.Like{}, &models.Comment{}, &models.Post{}, &models.Community{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clean %T: %w", model, err)
		}
	}
	return nil
}
