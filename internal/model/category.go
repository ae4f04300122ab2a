package model

// MaxIconLength is the largest accepted base64-encoded icon, roughly
// 50KB of image data after compression.
const MaxIconLength = 68267

// SubCategory is the second level of the category taxonomy.
type SubCategory struct {
	ID              string `json:"_id,omitempty"`
	Name            string `json:"name" validate:"notblank"`
	Description     string `json:"description,omitempty"`
	Icon            string `json:"icon,omitempty"`
	TotalComplaints int    `json:"totalComplaints,omitempty" validate:"gte=0"`
}

// Category is a top-level grouping of complaints. Length limits on
// description and icon are enforced on the write payloads only.
type Category struct {
	ID               string        `json:"_id,omitempty"`
	Name             string        `json:"name" validate:"notblank"`
	Description      string        `json:"description,omitempty"`
	Icon             string        `json:"icon,omitempty"`
	SubCategories    []SubCategory `json:"subCategories" validate:"unique_sub_ids,dive"`
	TotalComplaints  int           `json:"totalComplaints" validate:"gte=0"`
	IsFrequentlyUsed bool          `json:"isFrequentlyUsed"`
}

// HasSubCategories reports whether choosing this category requires a
// second step.
func (c Category) HasSubCategories() bool {
	return len(c.SubCategories) > 0
}

// SubCategory returns the child with the given id.
func (c Category) SubCategory(id string) (SubCategory, bool) {
	for _, sc := range c.SubCategories {
		if sc.ID == id {
			return sc, true
		}
	}
	return SubCategory{}, false
}

// Clone returns a copy that does not share the subcategory slice.
func (c Category) Clone() Category {
	out := c
	if c.SubCategories != nil {
		out.SubCategories = make([]SubCategory, len(c.SubCategories))
		copy(out.SubCategories, c.SubCategories)
	}
	return out
}

// CategoryTree is the full taxonomy as returned by the category listing.
type CategoryTree struct {
	Categories         []Category `json:"categories" validate:"dive"`
	FrequentCategories []Category `json:"frequentCategories" validate:"dive"`
	TotalComplaints    int        `json:"totalComplaints" validate:"gte=0"`
}

// CategoryInput is the write payload for creating or editing a category.
type CategoryInput struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description,omitempty" validate:"omitempty,min=10,max=500"`
	Icon        string `json:"icon,omitempty" validate:"omitempty,icon_size"`
}

// SubCategoryInput is the write payload for creating or editing a
// subcategory.
type SubCategoryInput struct {
	Name        string `json:"name" validate:"notblank"`
	Description string `json:"description,omitempty" validate:"omitempty,min=10,max=500"`
	Icon        string `json:"icon,omitempty" validate:"omitempty,icon_size"`
}
