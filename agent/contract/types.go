package contract

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type TrendAnalysis struct {
	Keywords []string `json:"keywords"`
	Analysis string   `json:"analysis"`
}

// ProductMetadata describes the product the user is looking at.
type ProductMetadata struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// StoreLocation is one item of a discovery result. Coordinates are nil when
// geocoding failed or no location was extracted.
type StoreLocation struct {
	Name      string   `json:"name"`
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}
