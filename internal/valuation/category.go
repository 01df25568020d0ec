package valuation

// Category is an inventory asset type scanned during valuation.
type Category struct {
	Name      string `json:"name"`
	AssetType int    `json:"assetType"`
}

// Categories are scanned and merged in this order.
var Categories = []Category{
	{Name: "Hat", AssetType: 8},
	{Name: "Hair", AssetType: 41},
	{Name: "Face Accessory", AssetType: 42},
	{Name: "Neck", AssetType: 43},
	{Name: "Shoulder", AssetType: 44},
	{Name: "Front", AssetType: 45},
	{Name: "Back", AssetType: 46},
	{Name: "Waist", AssetType: 47},
	{Name: "Shirt", AssetType: 11},
	{Name: "Pants", AssetType: 12},
	{Name: "T-Shirt", AssetType: 2},
	{Name: "Face", AssetType: 18},
	{Name: "Gear", AssetType: 19},
}

// CategoryStatus is the fetch outcome of one category.
type CategoryStatus string

const (
	CategoryOK       CategoryStatus = "ok"
	CategoryPrivate  CategoryStatus = "private"
	CategoryFailed   CategoryStatus = "failed"
	CategoryCanceled CategoryStatus = "canceled"
	CategorySkipped  CategoryStatus = "skipped"
)

// CategoryResult is the scan summary of one category.
type CategoryResult struct {
	Category
	Status    CategoryStatus `json:"status"`
	Items     int            `json:"items"`
	Pages     int            `json:"pages"`
	Truncated bool           `json:"truncated"` // More pages existed beyond the page limit

	assets []uint64
}
