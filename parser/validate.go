package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-hotels/models"
)

// ValidateHotel ensures the record can be written.
func ValidateHotel(h *models.Hotel) error {
	if h == nil {
		return fmt.Errorf("hotel is nil")
	}
	if h.URL == nil || strings.TrimSpace(*h.URL) == "" {
		return fmt.Errorf("hotel missing url")
	}
	return nil
}

// NormalizeHotel collapses blank fields to nil so writers see one absent marker.
func NormalizeHotel(h *models.Hotel) *models.Hotel {
	values := h.Values()
	for i, v := range values {
		if v == nil {
			continue
		}
		values[i] = models.StringPtr(strings.TrimSpace(*v))
	}
	h.SetValues(values)
	return h
}
