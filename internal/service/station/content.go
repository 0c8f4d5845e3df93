package station

import (
	"context"

	"github.com/hchapman/WBOR-sub000/internal/domain"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/repository"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// Posts serves the news feed.
type Posts struct {
	entities *repository.Entities[*domain.BlogPost]
	bySlug   *repository.UniqueIndex[*domain.BlogPost]
	last     *repository.LastN[*domain.BlogPost]
}

// NewPosts wires the blog post service.
func NewPosts(deps repository.Deps, s Settings) *Posts {
	points := repository.NewPointCache(deps, repository.Codec[*domain.BlogPost]{
		Kind:   domain.KindBlogPost,
		New:    func() *domain.BlogPost { return &domain.BlogPost{} },
		Decode: domain.DecodeBlogPost,
	}, s.EntityTTL)
	p := &Posts{
		bySlug: repository.NewUniqueIndex(deps, domain.FieldSlug, s.EntityTTL, points),
		last:   repository.NewLastN(deps, s.lastN(domain.KindBlogPost, domain.FieldPostDate, repository.Descending), points),
	}
	p.entities = repository.NewEntities[*domain.BlogPost](points, p.bySlug, p.last)
	return p
}

// Get returns the post at key, or nil.
func (p *Posts) Get(ctx context.Context, key persistence.Key) (*domain.BlogPost, error) {
	return p.entities.Get(ctx, key, true)
}

// BySlug returns the post with slug or a not-found error.
func (p *Posts) BySlug(ctx context.Context, slug string) (*domain.BlogPost, error) {
	return p.bySlug.Lookup(ctx, slug)
}

// GetLast returns up to num recent posts, newest first.
func (p *Posts) GetLast(ctx context.Context, num int) ([]*domain.BlogPost, error) {
	return p.last.GetLast(ctx, num, repository.LastQuery{})
}

// Put validates and stores post. Slugs are unique.
func (p *Posts) Put(ctx context.Context, post *domain.BlogPost) (persistence.Key, error) {
	if post.Slug == "" {
		post.Slug = text.Slug(post.Title)
	}
	if err := domain.Validate(post); err != nil {
		return persistence.Key{}, err
	}
	if err := ensureUnique(ctx, p.bySlug, post.Slug, post.Key, "slug"); err != nil {
		return persistence.Key{}, err
	}
	return p.entities.Put(ctx, post)
}

// Delete removes the post at key.
func (p *Posts) Delete(ctx context.Context, key persistence.Key) error {
	return p.entities.Delete(ctx, key)
}

// Events serves the calendar.
type Events struct {
	entities *repository.Entities[*domain.Event]
	upcoming *repository.LastN[*domain.Event]
}

// NewEvents wires the event service.
func NewEvents(deps repository.Deps, s Settings) *Events {
	points := repository.NewPointCache(deps, repository.Codec[*domain.Event]{
		Kind:   domain.KindEvent,
		New:    func() *domain.Event { return &domain.Event{} },
		Decode: domain.DecodeEvent,
	}, s.EntityTTL)
	upcoming := repository.NewLastN(deps, s.lastN(domain.KindEvent, domain.FieldEventDate, repository.Ascending), points)
	return &Events{entities: repository.NewEntities[*domain.Event](points, upcoming), upcoming: upcoming}
}

// Get returns the event at key, or nil.
func (e *Events) Get(ctx context.Context, key persistence.Key) (*domain.Event, error) {
	return e.entities.Get(ctx, key, true)
}

// Upcoming returns up to num events from the start of the current window,
// soonest first.
func (e *Events) Upcoming(ctx context.Context, num int) ([]*domain.Event, error) {
	return e.upcoming.GetLast(ctx, num, repository.LastQuery{})
}

// Put validates and stores event.
func (e *Events) Put(ctx context.Context, event *domain.Event) (persistence.Key, error) {
	if err := domain.Validate(event); err != nil {
		return persistence.Key{}, err
	}
	return e.entities.Put(ctx, event)
}

// Delete removes the event at key.
func (e *Events) Delete(ctx context.Context, key persistence.Key) error {
	return e.entities.Delete(ctx, key)
}
