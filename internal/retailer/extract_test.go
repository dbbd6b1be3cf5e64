package retailer

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestExtractDollarPrice(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
		ok   bool
	}{
		{"plain", `<span>$5.98</span>`, "5.98", true},
		{"thousands separator", `now only $1,299.00 delivered`, "1299.00", true},
		{"first of several", `$13.98 was $15.48`, "13.98", true},
		{"no cents rejected", `save $50 today`, "", false},
		{"below minimum", `clearance $0.05`, "", false},
		{"above maximum", `$99,999.00 commercial order`, "", false},
		{"no dollar amount", `out of stock`, "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price, ok := extractDollarPrice([]byte(tc.body), Material{Name: "2x4x8 Stud"})
			if ok != tc.ok {
				t.Fatalf("ok = %v, want %v", ok, tc.ok)
			}
			if tc.ok && !price.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("price = %s, want %s", price, tc.want)
			}
		})
	}
}
