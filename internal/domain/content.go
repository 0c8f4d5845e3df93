package domain

import (
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// BlogPost is a news item. Slugs are unique.
type BlogPost struct {
	Key      persistence.Key `json:"key"`
	Title    string          `json:"title" validate:"notblank,max=300"`
	Slug     string          `json:"slug" validate:"required,slug"`
	Body     string          `json:"body"`
	PostDate time.Time       `json:"post_date" validate:"required"`
}

// NewBlogPost creates an unsaved post with a slug derived from the title.
func NewBlogPost(title, body string, at time.Time) *BlogPost {
	return &BlogPost{
		Key:      persistence.NewKey(KindBlogPost, "", nil),
		Title:    title,
		Slug:     text.Slug(title),
		Body:     body,
		PostDate: at.UTC(),
	}
}

func (b *BlogPost) EntityKey() persistence.Key      { return b.Key }
func (b *BlogPost) SetEntityKey(k persistence.Key) { b.Key = k }

func (b *BlogPost) ToRecord() persistence.Record {
	return persistence.Record{Key: b.Key, Props: persistence.Properties{
		FieldTitle:    b.Title,
		FieldSlug:     b.Slug,
		"body":        b.Body,
		FieldPostDate: b.PostDate,
	}}
}

// DecodeBlogPost converts a stored record.
func DecodeBlogPost(rec persistence.Record) (*BlogPost, error) {
	if err := checkKind(rec, KindBlogPost); err != nil {
		return nil, err
	}
	return &BlogPost{
		Key:      rec.Key,
		Title:    rec.String(FieldTitle),
		Slug:     rec.String(FieldSlug),
		Body:     rec.String("body"),
		PostDate: rec.Time(FieldPostDate),
	}, nil
}

// Event is an upcoming station event.
type Event struct {
	Key       persistence.Key `json:"key"`
	Title     string          `json:"title" validate:"notblank,max=300"`
	Desc      string          `json:"desc"`
	EventDate time.Time       `json:"event_date" validate:"required"`
}

// NewEvent creates an unsaved Event.
func NewEvent(title, desc string, at time.Time) *Event {
	return &Event{Key: persistence.NewKey(KindEvent, "", nil), Title: title, Desc: desc, EventDate: at.UTC()}
}

func (e *Event) EntityKey() persistence.Key      { return e.Key }
func (e *Event) SetEntityKey(k persistence.Key) { e.Key = k }

func (e *Event) ToRecord() persistence.Record {
	return persistence.Record{Key: e.Key, Props: persistence.Properties{
		FieldTitle:     e.Title,
		"desc":         e.Desc,
		FieldEventDate: e.EventDate,
	}}
}

// DecodeEvent converts a stored record.
func DecodeEvent(rec persistence.Record) (*Event, error) {
	if err := checkKind(rec, KindEvent); err != nil {
		return nil, err
	}
	return &Event{
		Key:       rec.Key,
		Title:     rec.String(FieldTitle),
		Desc:      rec.String("desc"),
		EventDate: rec.Time(FieldEventDate),
	}, nil
}
