// Package catalog loads bulk menu imports.
//
// An import maps category names to dish codes to dish data:
//
//	{"Entradas": {"E1": {"name": "Bruschetta", "price": 18.5, "stock": 10}}}
//
// JSON and YAML are accepted, optionally gzip compressed, from a local path or
// an http(s) URL. The keys nome, preco and estoque are accepted as aliases of
// name, price and stock.
package catalog

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/service"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of an import document
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

const (
	maxCategoryName = 100
	maxDishCode     = 10
	maxDishName     = 200
	maxDocumentSize = 32 << 20
)

// MaxStock is the largest stock an import may set.
const MaxStock = math.MaxInt32

var ErrInvalidMenu = errors.New("invalid menu import")

// Importer applies a validated import
type Importer interface {
	ImportMenu(ctx context.Context, menu models.MenuImport) (*models.ImportResult, error)
}

// Loader fetches import documents
type Loader struct {
	client *http.Client
}

// NewLoader creates a loader. A nil client gets a default one with a one minute timeout.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &Loader{client: client}
}

// Load reads and parses the import at source, a file path or http(s) URL
func (l *Loader) Load(ctx context.Context, source string) (models.MenuImport, error) {
	var (
		data []byte
		err  error
	)
	if isURL(source) {
		data, err = l.fetch(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}

	return Read(bytes.NewReader(data), FormatFromName(source))
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
}

// Read parses an import from r, transparently decompressing gzip input
func Read(r io.Reader, format Format) (models.MenuImport, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read menu: %w", err)
	}

	if isGzip(data) {
		gzReader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()

		if data, err = io.ReadAll(io.LimitReader(gzReader, maxDocumentSize)); err != nil {
			return nil, fmt.Errorf("failed to decompress menu: %w", err)
		}
	}

	return Parse(data, format)
}

// Parse decodes and validates an uncompressed import document
func Parse(data []byte, format Format) (models.MenuImport, error) {
	if format == FormatAuto {
		format = sniff(data)
	}

	var raw map[string]map[string]map[string]any
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMenu, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMenu, err)
		}
	default:
		return nil, fmt.Errorf("unsupported menu format %q", format)
	}

	menu, err := fromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := Validate(menu); err != nil {
		return nil, err
	}
	return menu, nil
}

// Apply validates menu and hands it to imp
func Apply(ctx context.Context, imp Importer, menu models.MenuImport) (*models.ImportResult, error) {
	if err := Validate(menu); err != nil {
		return nil, err
	}
	return imp.ImportMenu(ctx, menu)
}

// Validate reports every problem in menu at once
func Validate(menu models.MenuImport) error {
	var problems []error
	seen := make(map[string]string)

	for _, category := range sortedKeys(menu) {
		switch n := utf8.RuneCountInString(category); {
		case strings.TrimSpace(category) == "":
			problems = append(problems, errors.New("category name is empty"))
		case n > maxCategoryName:
			problems = append(problems, fmt.Errorf("category %q is longer than %d characters", category, maxCategoryName))
		}

		dishes := menu[category]
		for _, code := range sortedKeys(dishes) {
			dish := dishes[code]
			where := fmt.Sprintf("%s/%s", category, code)

			switch {
			case code == "":
				problems = append(problems, fmt.Errorf("%s: code is empty", where))
			case utf8.RuneCountInString(code) > maxDishCode:
				problems = append(problems, fmt.Errorf("%s: code is longer than %d characters", where, maxDishCode))
			}
			if other, dup := seen[strings.ToUpper(code)]; dup {
				problems = append(problems, fmt.Errorf("%s: code also used in %s", where, other))
			}
			seen[strings.ToUpper(code)] = category

			switch {
			case strings.TrimSpace(dish.Name) == "":
				problems = append(problems, fmt.Errorf("%s: name is empty", where))
			case utf8.RuneCountInString(dish.Name) > maxDishName:
				problems = append(problems, fmt.Errorf("%s: name is longer than %d characters", where, maxDishName))
			}
			if err := service.ValidatePrice(dish.Price); err != nil {
				problems = append(problems, fmt.Errorf("%s: %w", where, err))
			}
			if dish.Stock < 0 {
				problems = append(problems, fmt.Errorf("%s: stock cannot be negative", where))
			}
			if dish.Stock > MaxStock {
				problems = append(problems, fmt.Errorf("%s: stock cannot exceed %d", where, MaxStock))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidMenu, errors.Join(problems...))
	}
	return nil
}

// FormatFromName guesses the format from a file name or URL, ignoring a .gz suffix
func FormatFromName(name string) Format {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 && isURL(name) {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, ".gz")

	switch path.Ext(name) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatAuto
	}
}

// FormatFromContentType maps an HTTP content type to a format
func FormatFromContentType(contentType string) Format {
	switch {
	case strings.Contains(contentType, "json"):
		return FormatJSON
	case strings.Contains(contentType, "yaml"):
		return FormatYAML
	default:
		return FormatAuto
	}
}

func fromRaw(raw map[string]map[string]map[string]any) (models.MenuImport, error) {
	menu := make(models.MenuImport, len(raw))
	categoryKeys := make(map[string]string, len(raw))
	for _, rawCategory := range sortedKeys(raw) {
		category := strings.TrimSpace(rawCategory)
		folded := strings.ToLower(category)
		if prev, ok := categoryKeys[folded]; ok {
			return nil, fmt.Errorf("%w: categories %q and %q name the same category", ErrInvalidMenu, prev, rawCategory)
		}
		categoryKeys[folded] = rawCategory

		dishes := raw[rawCategory]
		entries := make(map[string]models.DishSeed, len(dishes))
		codeKeys := make(map[string]string, len(dishes))
		for _, rawCode := range sortedKeys(dishes) {
			code := strings.ToUpper(strings.TrimSpace(rawCode))
			if prev, ok := codeKeys[code]; ok {
				return nil, fmt.Errorf("%w: %s: codes %q and %q name the same dish", ErrInvalidMenu, category, prev, rawCode)
			}
			codeKeys[code] = rawCode

			seed, err := seedFrom(dishes[rawCode])
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidMenu, category, rawCode, err)
			}
			entries[code] = seed
		}
		menu[category] = entries
	}
	return menu, nil
}

func seedFrom(fields map[string]any) (models.DishSeed, error) {
	var seed models.DishSeed

	if v, ok := lookup(fields, "name", "nome"); ok {
		name, ok := v.(string)
		if !ok {
			return seed, fmt.Errorf("name must be a string")
		}
		seed.Name = strings.TrimSpace(name)
	}

	v, ok := lookup(fields, "price", "preco")
	if !ok {
		return seed, fmt.Errorf("price is missing")
	}
	price, err := toDecimal(v)
	if err != nil {
		return seed, fmt.Errorf("price: %w", err)
	}
	seed.Price = price

	if v, ok := lookup(fields, "stock", "estoque"); ok {
		stock, err := toDecimal(v)
		if err != nil || !stock.IsInteger() {
			return seed, fmt.Errorf("stock must be a whole number")
		}
		if stock.GreaterThan(decimal.NewFromInt(MaxStock)) {
			return seed, fmt.Errorf("stock cannot exceed %d", MaxStock)
		}
		seed.Stock = int(stock.IntPart())
	}
	return seed, nil
}

func lookup(fields map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := fields[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(n))
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case float64:
		return decimal.NewFromFloat(n), nil
	default:
		return decimal.Zero, fmt.Errorf("unexpected value %v", v)
	}
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

func isGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

func isURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
