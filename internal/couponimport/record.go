// Package couponimport bulk loads coupon definitions from gzip compressed CSV
// files.
//
// Each row is
//
//	code,type,value,min_order,max_discount,usage_limit,per_user_limit,expires_at
//
// where everything after value may be empty and expires_at is RFC 3339. A
// first row starting with "code" is treated as a header.
package couponimport

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Columns of a coupon row.
const (
	colCode = iota
	colType
	colValue
	colMinOrder
	colMaxDiscount
	colUsageLimit
	colPerUserLimit
	colExpiresAt

	minColumns = colValue + 1
)

// ParseRecord converts one CSV row into an active coupon.
func ParseRecord(rec []string, now time.Time) (*coupon.Coupon, error) {
	if len(rec) < minColumns {
		return nil, errors.Errorf("want at least %d columns, got %d", minColumns, len(rec))
	}
	field := func(i int) string {
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	c := &coupon.Coupon{
		ID:           uuid.NewString(),
		Code:         coupon.NormalizeCode(field(colCode)),
		DiscountType: coupon.DiscountType(strings.ToLower(field(colType))),
		Active:       true,
		CreatedAt:    now,
	}

	var err error
	if c.Value, err = decimal.NewFromString(field(colValue)); err != nil {
		return nil, errors.Wrap(err, "value")
	}
	if v := field(colMinOrder); v != "" {
		if c.MinOrderAmount, err = decimal.NewFromString(v); err != nil {
			return nil, errors.Wrap(err, "min_order")
		}
	}
	if v := field(colMaxDiscount); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, errors.Wrap(err, "max_discount")
		}
		c.MaxDiscount = decimal.NewNullDecimal(d)
	}
	if v := field(colUsageLimit); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrap(err, "usage_limit")
		}
		c.UsageLimit = &n
	}
	if v := field(colPerUserLimit); v != "" {
		if c.PerUserLimit, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrap(err, "per_user_limit")
		}
	}
	if v := field(colExpiresAt); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.Wrap(err, "expires_at")
		}
		c.ExpiresAt = &t
	}

	if err := coupon.Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func isHeader(rec []string) bool {
	return len(rec) > 0 && strings.EqualFold(strings.TrimSpace(rec[colCode]), "code")
}
