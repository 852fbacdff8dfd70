package model

// Place is a business-directory candidate location.
type Place struct {
	Name     string  `json:"name"`
	Address  string  `json:"address,omitempty"`
	Street   string  `json:"street,omitempty"`
	Postal   string  `json:"postal,omitempty"`
	City     string  `json:"city,omitempty"`
	Country  string  `json:"country,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Website  string  `json:"website,omitempty"`
	Category string  `json:"category,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}
