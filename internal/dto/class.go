package dto

// ClassRequest is the payload for creating or editing a class.
type ClassRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Code         string   `json:"code,omitempty" validate:"omitempty,alphanum,min=4,max=16"`
	Latitude     *float64 `json:"latitude" validate:"required,latitude"`
	Longitude    *float64 `json:"longitude" validate:"required,longitude"`
	RadiusMeters float64  `json:"radius_meters" validate:"gt=0,lte=100000"`
	Address      string   `json:"address,omitempty" validate:"max=255"`
	CheckInTime  *string  `json:"check_in_time,omitempty"`
	CheckOutTime *string  `json:"check_out_time,omitempty"`
}
