package dto

type ReportRequest struct {
	Reason string `json:"reason"`
}

// SetBannedRequest requires banned to be present; an empty body is rejected.
type SetBannedRequest struct {
	Banned *bool `json:"banned"`
}

// SetPremiumRequest grants premium for Days from now, at most MaxPremiumDays;
// zero revokes it.
type SetPremiumRequest struct {
	Days int `json:"days"`
}

const MaxPremiumDays = 3650
