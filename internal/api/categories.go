package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/complaint-desk/internal/model"
)

// Metric route labels for category endpoints.
const (
	routeCategories  = "/categories"
	routeCategory    = "/categories/{id}"
	routeSubs        = "/categories/{id}/subcategories"
	routeSubCategory = "/categories/{id}/subcategories/{subId}"
)

// ListCategories fetches the whole taxonomy.
func (c *Client) ListCategories(ctx context.Context) (model.CategoryTree, error) {
	var tree model.CategoryTree
	if err := c.get(ctx, routeCategories, routeCategories, &tree); err != nil {
		return model.CategoryTree{}, fmt.Errorf("listing categories: %w", err)
	}
	if err := model.Validate(tree); err != nil {
		return model.CategoryTree{}, fmt.Errorf("listing categories: %w", err)
	}
	return tree, nil
}

// CreateCategory creates a top-level category.
func (c *Client) CreateCategory(ctx context.Context, in model.CategoryInput) (model.Category, error) {
	return c.sendCategory(ctx, http.MethodPost, routeCategories, routeCategories, in, "creating category")
}

// UpdateCategory edits a category and returns it with its subcategories.
func (c *Client) UpdateCategory(ctx context.Context, id string, in model.CategoryInput) (model.Category, error) {
	return c.sendCategory(ctx, http.MethodPut, routeCategory, categoryPath(id), in,
		"updating category "+id)
}

// DeleteCategory removes a category together with its subcategories.
func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, routeCategory, categoryPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting category %s: %w", id, err)
	}
	return nil
}

// AddSubCategory creates a subcategory and returns the updated parent.
func (c *Client) AddSubCategory(ctx context.Context, categoryID string, in model.SubCategoryInput) (model.Category, error) {
	return c.sendCategory(ctx, http.MethodPost, routeSubs, categoryPath(categoryID)+"/subcategories", in,
		"adding subcategory to "+categoryID)
}

// UpdateSubCategory edits a subcategory and returns the updated parent.
func (c *Client) UpdateSubCategory(
	ctx context.Context,
	categoryID string,
	subCategoryID string,
	in model.SubCategoryInput,
) (model.Category, error) {
	return c.sendCategory(ctx, http.MethodPut, routeSubCategory, subCategoryPath(categoryID, subCategoryID), in,
		"updating subcategory "+subCategoryID)
}

// DeleteSubCategory removes a single subcategory.
func (c *Client) DeleteSubCategory(ctx context.Context, categoryID, subCategoryID string) error {
	path := subCategoryPath(categoryID, subCategoryID)
	if err := c.doJSON(ctx, http.MethodDelete, routeSubCategory, path, nil, nil); err != nil {
		return fmt.Errorf("deleting subcategory %s: %w", subCategoryID, err)
	}
	return nil
}

func (c *Client) sendCategory(
	ctx context.Context,
	method string,
	route string,
	path string,
	body interface{},
	action string,
) (model.Category, error) {
	var cat model.Category
	if err := c.doJSON(ctx, method, route, path, body, &cat); err != nil {
		return model.Category{}, fmt.Errorf("%s: %w", action, err)
	}
	if err := model.Validate(cat); err != nil {
		return model.Category{}, fmt.Errorf("%s: %w", action, err)
	}
	return cat, nil
}

func categoryPath(id string) string {
	return routeCategories + "/" + url.PathEscape(id)
}

func subCategoryPath(categoryID, subCategoryID string) string {
	return categoryPath(categoryID) + "/subcategories/" + url.PathEscape(subCategoryID)
}
