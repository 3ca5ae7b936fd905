package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/shopspring/decimal"
)

const fileFormatVersion = 1

// fileSnapshot is the on-disk layout of a FileStore.
// Order totals are not written; they are always derived from the lines.
type fileSnapshot struct {
	Version    int            `json:"version"`
	Categories []fileCategory `json:"categories"`
	Dishes     []fileDish     `json:"dishes"`
	Orders     []fileOrder    `json:"orders"`
}

type fileCategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type fileDish struct {
	ID         int64           `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	CategoryID int64           `json:"categoryId"`
	Price      decimal.Decimal `json:"price"`
	Stock      int             `json:"stock"`
}

type fileOrder struct {
	ID            string         `json:"id"`
	CustomerLabel string         `json:"customerLabel"`
	CreatedAt     time.Time      `json:"createdAt"`
	Paid          bool           `json:"paid"`
	Lines         []fileLineItem `json:"lines"`
}

type fileLineItem struct {
	DishID    int64           `json:"dishId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// FileStore is a MemoryStore whose every commit is first written to a JSON
// file. The file is replaced with a rename so it is never half written, and
// a failed write leaves both the file and the in-memory state untouched.
type FileStore struct {
	*MemoryStore
	path      string
	writeFile func(path string, data []byte) error
}

// OpenFileStore loads the store from path, starting empty if the file does not exist
func OpenFileStore(path string) (*FileStore, error) {
	state := newMemoryState()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read store file: %w", err)
	default:
		if state, err = decodeSnapshot(data); err != nil {
			return nil, fmt.Errorf("failed to decode store file %s: %w", path, err)
		}
	}

	fs := &FileStore{path: path, writeFile: writeFileAtomic}
	fs.MemoryStore = newMemoryStore(state, fs.persist)
	return fs, nil
}

// Path returns the file backing the store
func (fs *FileStore) Path() string {
	return fs.path
}

func (fs *FileStore) persist(st *memoryState) error {
	data, err := json.MarshalIndent(encodeSnapshot(st), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	return fs.writeFile(fs.path, data)
}

func encodeSnapshot(st *memoryState) fileSnapshot {
	snap := fileSnapshot{
		Version:    fileFormatVersion,
		Categories: make([]fileCategory, 0, len(st.categories)),
		Dishes:     make([]fileDish, 0, len(st.dishes)),
		Orders:     make([]fileOrder, 0, len(st.orders)),
	}

	for _, cat := range st.categories {
		snap.Categories = append(snap.Categories, fileCategory{ID: cat.ID, Name: cat.Name})
	}
	sort.Slice(snap.Categories, func(i, j int) bool { return snap.Categories[i].ID < snap.Categories[j].ID })

	for _, d := range st.dishes {
		snap.Dishes = append(snap.Dishes, fileDish{
			ID:         d.ID,
			Code:       d.Code,
			Name:       d.Name,
			CategoryID: d.CategoryID,
			Price:      d.Price,
			Stock:      d.Stock,
		})
	}
	sort.Slice(snap.Dishes, func(i, j int) bool { return snap.Dishes[i].ID < snap.Dishes[j].ID })

	for _, o := range st.orders {
		fo := fileOrder{
			ID:            o.ID,
			CustomerLabel: o.CustomerLabel,
			CreatedAt:     o.CreatedAt,
			Paid:          o.Paid,
			Lines:         make([]fileLineItem, 0, len(o.Lines)),
		}
		for _, line := range o.Lines {
			fo.Lines = append(fo.Lines, fileLineItem{
				DishID:    line.DishID,
				Quantity:  line.Quantity,
				UnitPrice: line.UnitPrice,
			})
		}
		snap.Orders = append(snap.Orders, fo)
	}
	sort.Slice(snap.Orders, func(i, j int) bool {
		if !snap.Orders[i].CreatedAt.Equal(snap.Orders[j].CreatedAt) {
			return snap.Orders[i].CreatedAt.Before(snap.Orders[j].CreatedAt)
		}
		return snap.Orders[i].ID < snap.Orders[j].ID
	})

	return snap
}

func decodeSnapshot(data []byte) (*memoryState, error) {
	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	if snap.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported store file version %d", snap.Version)
	}

	st := newMemoryState()
	for _, c := range snap.Categories {
		st.categories[c.ID] = models.Category{ID: c.ID, Name: c.Name}
		st.nextCategoryID = max(st.nextCategoryID, c.ID)
	}
	for _, d := range snap.Dishes {
		if _, ok := st.categories[d.CategoryID]; !ok {
			return nil, fmt.Errorf("dish %s references unknown category %d", d.Code, d.CategoryID)
		}
		if d.Stock < 0 {
			return nil, fmt.Errorf("dish %s has negative stock %d", d.Code, d.Stock)
		}
		st.dishes[d.ID] = models.Dish{
			ID:         d.ID,
			Code:       d.Code,
			Name:       d.Name,
			CategoryID: d.CategoryID,
			Price:      d.Price,
			Stock:      d.Stock,
		}
		st.nextDishID = max(st.nextDishID, d.ID)
	}
	for _, o := range snap.Orders {
		order := models.Order{
			ID:            o.ID,
			CustomerLabel: o.CustomerLabel,
			CreatedAt:     o.CreatedAt,
			Paid:          o.Paid,
			Lines:         make([]models.OrderLine, 0, len(o.Lines)),
		}
		for _, l := range o.Lines {
			order.Lines = append(order.Lines, models.OrderLine{
				OrderID:   o.ID,
				DishID:    l.DishID,
				Quantity:  l.Quantity,
				UnitPrice: l.UnitPrice,
			})
		}
		st.orders[o.ID] = order
	}
	return st, nil
}

// writeFileAtomic writes data to a temp file in the target directory and renames it over path
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
