package product

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Writer stores catalog entries, replacing existing ones by ID.
type Writer interface {
	Upsert(ctx context.Context, products []Product) error
}

type catalogEntry struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
	ImageURL string          `json:"imageUrl"`
	Image    struct {
		Thumbnail string `json:"thumbnail"`
	} `json:"image"`
}

// Decode reads a JSON array of catalog entries. The image URL is taken from
// "imageUrl" or, failing that, "image.thumbnail".
func Decode(r io.Reader) ([]Product, error) {
	var entries []catalogEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, errors.Wrap(err, "decode catalog")
	}
	out := make([]Product, 0, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, errors.Errorf("catalog entry %d: missing id", i)
		}
		if e.Price.IsNegative() {
			return nil, errors.Errorf("catalog entry %s: negative price", e.ID)
		}
		if !e.Price.Equal(e.Price.Truncate(2)) {
			return nil, errors.Errorf("catalog entry %s: price %s has fractional cents", e.ID, e.Price)
		}
		img := e.ImageURL
		if img == "" {
			img = e.Image.Thumbnail
		}
		out = append(out, Product{
			ID:       e.ID,
			Name:     e.Name,
			Price:    e.Price,
			Category: e.Category,
			ImageURL: img,
		})
	}
	return out, nil
}

// LoadFile decodes the catalog file at path.
func LoadFile(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog")
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}
