package domain

import "fmt"

// Notice is a user-facing signal raised when a requested quantity had to be
// reduced or rejected because of the stock ceiling.
type Notice struct {
	Region    Region `json:"region"`
	LineID    string `json:"lineId"`
	Available int    `json:"available"`
	Message   string `json:"message"`
}

func NewStockNotice(r Region, lineID string, available int) Notice {
	return Notice{
		Region:    r,
		LineID:    lineID,
		Available: available,
		Message:   fmt.Sprintf("Only %d available", available),
	}
}
