package ticketid

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spec-kit/helpdesk/internal/domain"
)

const (
	prefix      = "TK"
	serialWidth = 3
)

// ErrMalformed is returned by Parse for strings that are not ticket ids.
var ErrMalformed = errors.New("malformed ticket id")

// CounterStore hands out the next serial for a (year, category code) partition.
// Implementations must be atomic: concurrent callers never observe the same value.
type CounterStore interface {
	Increment(ctx context.Context, year int, code string) (int64, error)
}

// Allocator composes ticket ids of the form TK-<year>-<code>-<serial>.
type Allocator struct {
	now func() time.Time
}

// NewAllocator builds an allocator. A nil clock defaults to time.Now.
func NewAllocator(now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{now: now}
}

// Next reserves the next serial for category in the current year and returns the formatted id.
func (a *Allocator) Next(ctx context.Context, counters CounterStore, category domain.TicketCategory) (string, error) {
	code := CategoryCode(category)
	if code == "" {
		return "", fmt.Errorf("category %q has no code", category)
	}
	year := a.now().UTC().Year()
	serial, err := counters.Increment(ctx, year, code)
	if err != nil {
		return "", err
	}
	return Format(year, code, serial), nil
}

// CategoryCode returns the first two letters of the category, uppercased.
func CategoryCode(category domain.TicketCategory) string {
	letters := make([]rune, 0, 2)
	for _, r := range string(category) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters = append(letters, unicode.ToUpper(r))
		if len(letters) == 2 {
			return string(letters)
		}
	}
	return ""
}

// Format renders an id. Serials above 999 widen the field, which breaks lexicographic order
// across the 999/1000 boundary; numeric order is kept by the counter.
func Format(year int, code string, serial int64) string {
	return fmt.Sprintf("%s-%d-%s-%0*d", prefix, year, code, serialWidth, serial)
}

// Parse splits an id into its year, category code and serial.
func Parse(id string) (year int, code string, serial int64, err error) {
	parts := strings.Split(id, "-")
	if len(parts) != 4 || parts[0] != prefix {
		return 0, "", 0, ErrMalformed
	}
	if len(parts[1]) != 4 {
		return 0, "", 0, ErrMalformed
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", 0, ErrMalformed
	}
	code = parts[2]
	if len(code) != 2 || !isUpperASCII(code) {
		return 0, "", 0, ErrMalformed
	}
	if len(parts[3]) < serialWidth {
		return 0, "", 0, ErrMalformed
	}
	serial, err = strconv.ParseInt(parts[3], 10, 64)
	if err != nil || serial <= 0 {
		return 0, "", 0, ErrMalformed
	}
	return year, code, serial, nil
}

func isUpperASCII(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
