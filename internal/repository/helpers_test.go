package repository

import (
	"time"

	"github.com/hchapman/WBOR-sub000/internal/infrastructure/cache"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence"
	"github.com/hchapman/WBOR-sub000/internal/infrastructure/persistence/memory"
	"github.com/hchapman/WBOR-sub000/pkg/text"

	"go.uber.org/zap"
)

// item is a small entity covering every field shape the components index.
type item struct {
	Key   persistence.Key `json:"key"`
	Name  string          `json:"name"`
	Date  time.Time       `json:"date"`
	New   bool            `json:"is_new"`
	Album persistence.Key `json:"album"`
}

func (i *item) EntityKey() persistence.Key      { return i.Key }
func (i *item) SetEntityKey(k persistence.Key) { i.Key = k }

func (i *item) ToRecord() persistence.Record {
	props := persistence.Properties{
		"name":        i.Name,
		"lower_name":  text.Normalize(i.Name),
		"search_name": text.SearchName(i.Name),
		"is_new":      i.New,
	}
	if !i.Date.IsZero() {
		props["date"] = i.Date
	}
	if !i.Album.IsZero() {
		props["album"] = i.Album
	}
	return persistence.Record{Key: i.Key, Props: props}
}

func itemCodec(kind string) Codec[*item] {
	return Codec[*item]{
		Kind: kind,
		New:  func() *item { return &item{} },
		Decode: func(rec persistence.Record) (*item, error) {
			return &item{
				Key:   rec.Key,
				Name:  rec.String("name"),
				Date:  rec.Time("date"),
				New:   rec.Bool("is_new"),
				Album: rec.KeyProp("album"),
			}, nil
		},
	}
}

var testNow = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

type fixture struct {
	store *memory.Store
	cache *cache.MemoryCache
	deps  Deps
}

func newFixture() *fixture {
	store := memory.NewStore()
	mc := cache.NewMemoryCache(1000, 1<<24, nil)
	return &fixture{
		store: store,
		cache: mc,
		deps: Deps{
			Store:  store,
			Cache:  mc,
			Logger: zap.NewNop(),
			Now:    func() time.Time { return testNow },
		},
	}
}

func names(items []*item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}
