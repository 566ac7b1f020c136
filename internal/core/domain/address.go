package domain

import "strings"

// Address is stored on the order as a snapshot, never as a reference to the
// user's address book.
type Address struct {
	FullName   string `json:"fullName"`
	Phone      string `json:"phone"`
	Detail     string `json:"detail"`
	WardCode   string `json:"wardCode"`
	WardName   string `json:"wardName,omitempty"`
	DistrictID int    `json:"districtId"`
	District   string `json:"district,omitempty"`
	ProvinceID int    `json:"provinceId,omitempty"`
	Province   string `json:"province,omitempty"`
}

// MissingFields lists the required fields that are blank.
func (a Address) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(a.FullName) == "" {
		missing = append(missing, "fullName")
	}
	if strings.TrimSpace(a.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(a.Detail) == "" {
		missing = append(missing, "detail")
	}
	if strings.TrimSpace(a.WardCode) == "" {
		missing = append(missing, "wardCode")
	}
	if a.DistrictID <= 0 {
		missing = append(missing, "districtId")
	}
	return missing
}
