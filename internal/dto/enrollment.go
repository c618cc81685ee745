package dto

// JoinClassRequest enrolls the caller using a class join code.
type JoinClassRequest struct {
	Code string `json:"code" validate:"required,max=16"`
}
