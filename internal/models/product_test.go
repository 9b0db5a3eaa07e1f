package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductValidate(t *testing.T) {
	tests := []struct {
		name    string
		product *Product
		want    []string
	}{
		{"sku only", &Product{URL: "https://shein.com/p-1.html", SKU: "sw2203"}, nil},
		{"title only", &Product{URL: "https://shein.com/p-1.html", Title: "Dress"}, nil},
		{"nothing extracted", &Product{URL: "https://shein.com/p-1.html"}, []string{"SKU or title is required"}},
		{"no url", &Product{SKU: "x"}, []string{"URL is required"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.product.Validate())
		})
	}
}

func TestNewProduct(t *testing.T) {
	p := NewProduct("https://shein.com/p-1.html")

	assert.Equal(t, "https://shein.com/p-1.html", p.URL)
	assert.NotNil(t, p.Images)
	assert.False(t, p.ScrapedAt.IsZero())
	assert.Equal(t, p.ScrapedAt, p.LastUpdated)
}
