package service

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/Lixing-Zhang/restaurant-backend/internal/models"
	"github.com/Lixing-Zhang/restaurant-backend/internal/repository"
	"github.com/shopspring/decimal"
)

var maxPrice = decimal.RequireFromString("999999.99")

// MenuService handles read access to the menu and its administrative edits
type MenuService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewMenuService creates a new menu service
func NewMenuService(store repository.Store, logger *slog.Logger) *MenuService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuService{
		store:  store,
		logger: logger,
	}
}

// FindDish returns a dish by ID
func (s *MenuService) FindDish(ctx context.Context, id int64) (*models.Dish, error) {
	dish, err := s.store.GetDish(ctx, id)
	if err != nil {
		return nil, translate("find dish", err)
	}
	return dish, nil
}

// FindDishByCode returns a dish by its menu code, ignoring case
func (s *MenuService) FindDishByCode(ctx context.Context, code string) (*models.Dish, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrDishNotFound
	}
	dish, err := s.store.GetDishByCode(ctx, code)
	if err != nil {
		return nil, translate("find dish", err)
	}
	return dish, nil
}

// ListByCategory returns the dishes of the named category ordered by code.
// An unknown category yields an empty list.
func (s *MenuService) ListByCategory(ctx context.Context, category string, onlyInStock bool) ([]models.Dish, error) {
	dishes, err := s.store.ListDishes(ctx)
	if err != nil {
		return nil, translate("list dishes", err)
	}

	category = strings.TrimSpace(category)
	result := []models.Dish{}
	for _, d := range dishes {
		if !strings.EqualFold(d.Category, category) {
			continue
		}
		if onlyInStock && !d.InStock() {
			continue
		}
		result = append(result, d)
	}
	sortByCode(result)
	return result, nil
}

// Search matches term against dish names, ignoring case.
// Results are ordered by category name, then dish name.
func (s *MenuService) Search(ctx context.Context, term string) ([]models.Dish, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []models.Dish{}, nil
	}

	dishes, err := s.store.ListDishes(ctx)
	if err != nil {
		return nil, translate("search dishes", err)
	}

	result := []models.Dish{}
	for _, d := range dishes {
		if strings.Contains(strings.ToLower(d.Name), term) {
			result = append(result, d)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Menu returns every category with its dishes ordered by code.
// With onlyInStock, sold out dishes and the categories left empty are omitted.
func (s *MenuService) Menu(ctx context.Context, onlyInStock bool) ([]models.CategoryMenu, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, translate("list categories", err)
	}
	dishes, err := s.store.ListDishes(ctx)
	if err != nil {
		return nil, translate("list dishes", err)
	}

	byCategory := make(map[int64][]models.Dish, len(categories))
	for _, d := range dishes {
		if onlyInStock && !d.InStock() {
			continue
		}
		byCategory[d.CategoryID] = append(byCategory[d.CategoryID], d)
	}

	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	menu := make([]models.CategoryMenu, 0, len(categories))
	for _, cat := range categories {
		entries := byCategory[cat.ID]
		if onlyInStock && len(entries) == 0 {
			continue
		}
		if entries == nil {
			entries = []models.Dish{}
		}
		sortByCode(entries)
		menu = append(menu, models.CategoryMenu{Category: cat, Dishes: entries})
	}
	return menu, nil
}

// ImportMenu upserts a bulk menu import
func (s *MenuService) ImportMenu(ctx context.Context, menu models.MenuImport) (*models.ImportResult, error) {
	result, err := s.store.ImportMenu(ctx, menu)
	if err != nil {
		return nil, translate("import menu", err)
	}
	s.logger.Info("menu imported",
		"categories_created", result.CategoriesCreated,
		"dishes_created", result.DishesCreated,
		"dishes_updated", result.DishesUpdated,
	)
	return result, nil
}

// UpdateDishPrice changes the live price of a dish. Existing order lines keep their price.
func (s *MenuService) UpdateDishPrice(ctx context.Context, id int64, price decimal.Decimal) (*models.Dish, error) {
	if err := ValidatePrice(price); err != nil {
		return nil, err
	}
	dish, err := s.store.UpdateDishPrice(ctx, id, price)
	if err != nil {
		return nil, translate("update price", err)
	}
	s.logger.Info("dish price updated", "dish_id", id, "price", price.StringFixed(2))
	return dish, nil
}

// DeleteDish removes a dish no order refers to
func (s *MenuService) DeleteDish(ctx context.Context, id int64) error {
	if err := s.store.DeleteDish(ctx, id); err != nil {
		return translate("delete dish", err)
	}
	s.logger.Info("dish deleted", "dish_id", id)
	return nil
}

// DeleteCategory removes a category together with its dishes
func (s *MenuService) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return translate("delete category", err)
	}
	s.logger.Info("category deleted", "category_id", id)
	return nil
}

// ValidatePrice accepts non-negative prices with at most two decimal places
func ValidatePrice(price decimal.Decimal) error {
	if price.IsNegative() || price.GreaterThan(maxPrice) || !price.Equal(price.Round(2)) {
		return ErrInvalidPrice
	}
	return nil
}

func sortByCode(dishes []models.Dish) {
	sort.Slice(dishes, func(i, j int) bool { return dishes[i].Code < dishes[j].Code })
}
