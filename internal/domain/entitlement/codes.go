package entitlement

import (
	"fmt"
	"strings"
	"time"
)

// PromoCode upgrades a user to the paid tier. A zero Duration is permanent.
type PromoCode struct {
	Code     string
	Duration time.Duration
}

// Permanent reports whether redeeming the code grants paid with no expiry
func (c PromoCode) Permanent() bool {
	return c.Duration <= 0
}

// NormalizeCode applies the matching rules for user-entered codes
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// CodeCatalog is the fixed allow-list of redeemable codes
type CodeCatalog struct {
	codes map[string]PromoCode
}

// NewCodeCatalog builds a catalog keyed by normalized code
func NewCodeCatalog(codes ...PromoCode) CodeCatalog {
	c := CodeCatalog{codes: make(map[string]PromoCode, len(codes))}
	for _, pc := range codes {
		key := NormalizeCode(pc.Code)
		if key == "" {
			continue
		}
		pc.Code = key
		c.codes[key] = pc
	}
	return c
}

// Lookup finds the code matching raw after normalization
func (c CodeCatalog) Lookup(raw string) (PromoCode, bool) {
	pc, ok := c.codes[NormalizeCode(raw)]
	return pc, ok
}

// Len returns the number of codes in the catalog
func (c CodeCatalog) Len() int {
	return len(c.codes)
}

// ParsePromoCode parses "CODE" or "CODE:duration" (for example "TRIAL30:720h")
func ParsePromoCode(entry string) (PromoCode, error) {
	name, dur, hasDur := strings.Cut(strings.TrimSpace(entry), ":")
	name = NormalizeCode(name)
	if name == "" {
		return PromoCode{}, fmt.Errorf("empty promo code in %q", entry)
	}
	if !hasDur {
		return PromoCode{Code: name}, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(dur))
	if err != nil {
		return PromoCode{}, fmt.Errorf("promo code %s: invalid duration: %w", name, err)
	}
	if d <= 0 {
		return PromoCode{}, fmt.Errorf("promo code %s: duration must be positive", name)
	}
	return PromoCode{Code: name, Duration: d}, nil
}
