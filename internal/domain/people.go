package domain

import (
	"encoding/json"
	"fmt"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/pkg/text"
)

// Dj is a station DJ. Username and Email are unique.
type Dj struct {
	Key      persistence.Key `json:"key"`
	Name     string          `json:"name" validate:"notblank,max=200"`
	Email    string          `json:"email" validate:"required,email"`
	Username string          `json:"username" validate:"notblank,max=64"`
}

// NewDj creates an unsaved Dj.
func NewDj(name, email, username string) *Dj {
	return &Dj{Key: persistence.NewKey(KindDj, "", nil), Name: name, Email: email, Username: username}
}

func (d *Dj) EntityKey() persistence.Key      { return d.Key }
func (d *Dj) SetEntityKey(k persistence.Key) { d.Key = k }

func (d *Dj) ToRecord() persistence.Record {
	return persistence.Record{Key: d.Key, Props: persistence.Properties{
		FieldName:      d.Name,
		FieldLowerName: text.Normalize(d.Name),
		FieldEmail:     text.Normalize(d.Email),
		FieldUsername:  d.Username,
	}}
}

// DecodeDj converts a stored record.
func DecodeDj(rec persistence.Record) (*Dj, error) {
	if err := checkKind(rec, KindDj); err != nil {
		return nil, err
	}
	return &Dj{
		Key:      rec.Key,
		Name:     rec.String(FieldName),
		Email:    rec.String(FieldEmail),
		Username: rec.String(FieldUsername),
	}, nil
}

// Program is a show. Plays, PSAs and station IDs are its children.
type Program struct {
	Key         persistence.Key   `json:"key"`
	Title       string            `json:"title" validate:"notblank,max=200"`
	Slug        string            `json:"slug" validate:"required,slug"`
	Description string            `json:"description,omitempty"`
	Djs         []persistence.Key `json:"djs"`
	// TopArtists counts plays per artist name. Updates are read-modify-write
	// without coordination; concurrent charts may lose an increment.
	TopArtists map[string]int64 `json:"top_artists,omitempty"`
}

// NewProgram creates an unsaved Program with a slug derived from the title.
func NewProgram(title string, djs ...persistence.Key) *Program {
	return &Program{
		Key:   persistence.NewKey(KindProgram, "", nil),
		Title: title,
		Slug:  text.Slug(title),
		Djs:   djs,
	}
}

func (p *Program) EntityKey() persistence.Key      { return p.Key }
func (p *Program) SetEntityKey(k persistence.Key) { p.Key = k }

func (p *Program) ToRecord() persistence.Record {
	props := persistence.Properties{
		FieldTitle:      p.Title,
		FieldLowerTitle: text.Normalize(p.Title),
		FieldSlug:       p.Slug,
		"description":   p.Description,
		FieldDjs:        keyList(p.Djs),
	}
	if len(p.TopArtists) > 0 {
		props["top_artists"] = encodeJSON(p.TopArtists)
	}
	return persistence.Record{Key: p.Key, Props: props}
}

// DecodeProgram converts a stored record.
func DecodeProgram(rec persistence.Record) (*Program, error) {
	if err := checkKind(rec, KindProgram); err != nil {
		return nil, err
	}
	djs, err := parseKeyList(rec.Strings(FieldDjs))
	if err != nil {
		return nil, fmt.Errorf("decode program djs: %w", err)
	}
	p := &Program{
		Key:         rec.Key,
		Title:       rec.String(FieldTitle),
		Slug:        rec.String(FieldSlug),
		Description: rec.String("description"),
		Djs:         djs,
	}
	if raw := rec.String("top_artists"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.TopArtists); err != nil {
			return nil, fmt.Errorf("decode program top artists: %w", err)
		}
	}
	return p, nil
}

// HasDj reports whether dj hosts the program.
func (p *Program) HasDj(dj persistence.Key) bool {
	for _, k := range p.Djs {
		if k == dj {
			return true
		}
	}
	return false
}

// Permission is a named capability granted to DJs. Titles are unique.
type Permission struct {
	Key   persistence.Key   `json:"key"`
	Title string            `json:"title" validate:"notblank,max=100"`
	Djs   []persistence.Key `json:"djs"`
}

// NewPermission creates an unsaved Permission.
func NewPermission(title string) *Permission {
	return &Permission{Key: persistence.NewKey(KindPermission, "", nil), Title: title}
}

func (p *Permission) EntityKey() persistence.Key      { return p.Key }
func (p *Permission) SetEntityKey(k persistence.Key) { p.Key = k }

func (p *Permission) ToRecord() persistence.Record {
	return persistence.Record{Key: p.Key, Props: persistence.Properties{
		FieldTitle: p.Title,
		FieldDjs:   keyList(p.Djs),
	}}
}

// DecodePermission converts a stored record.
func DecodePermission(rec persistence.Record) (*Permission, error) {
	if err := checkKind(rec, KindPermission); err != nil {
		return nil, err
	}
	djs, err := parseKeyList(rec.Strings(FieldDjs))
	if err != nil {
		return nil, fmt.Errorf("decode permission djs: %w", err)
	}
	return &Permission{Key: rec.Key, Title: rec.String(FieldTitle), Djs: djs}, nil
}

// Grant adds dj and reports whether it was missing.
func (p *Permission) Grant(dj persistence.Key) bool {
	for _, k := range p.Djs {
		if k == dj {
			return false
		}
	}
	p.Djs = append(p.Djs, dj)
	return true
}

// Revoke removes dj and reports whether it was present.
func (p *Permission) Revoke(dj persistence.Key) bool {
	for i, k := range p.Djs {
		if k == dj {
			p.Djs = append(p.Djs[:i], p.Djs[i+1:]...)
			return true
		}
	}
	return false
}
