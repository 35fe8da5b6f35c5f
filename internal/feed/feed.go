// Package feed keeps a short, newest-first list of donation messages for
// display, with a case-insensitive text filter over it.
package feed

import (
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"donations/internal/core"
	applog "donations/internal/log"
)

// DefaultCapacity is the number of entries kept when none is configured.
const DefaultCapacity = 8

// DefaultTemplates are the thank-you messages. Each takes the donor name
// and the formatted amount, in that order.
var DefaultTemplates = []string{
	"%s gave %s. Thank you for your kindness!",
	"%s just donated %s. You’re making a difference.",
	"A big thanks to %s for their generous %s donation!",
	"%s contributed %s to the mission.",
	"A round of applause for %s’s %s gift!",
}

// MoneyFormatter renders an amount for display
type MoneyFormatter func(decimal.Decimal) string

// NewMoneyFormatter formats amounts with two decimals, the separators of
// tag and a leading symbol, e.g. "$1,234.50". Digits come from the decimal
// value itself, so large amounts keep their cents.
func NewMoneyFormatter(tag language.Tag, symbol string) MoneyFormatter {
	group, point := separators(message.NewPrinter(tag))
	return func(d decimal.Decimal) string {
		whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
		sign := ""
		if strings.HasPrefix(whole, "-") {
			sign, whole = "-", whole[1:]
		}
		var b strings.Builder
		b.WriteString(sign)
		b.WriteString(symbol)
		for i, r := range whole {
			if i > 0 && (len(whole)-i)%3 == 0 {
				b.WriteString(group)
			}
			b.WriteRune(r)
		}
		b.WriteString(point)
		b.WriteString(frac)
		return b.String()
	}
}

// separators reads the grouping and decimal separators p uses for tag.
func separators(p *message.Printer) (group, point string) {
	s := strings.TrimPrefix(p.Sprintf("%.1f", 1000.5), "1")
	i := strings.Index(s, "000")
	if i < 0 || !strings.HasSuffix(s, "5") {
		return ",", "."
	}
	return s[:i], s[i+3 : len(s)-1]
}

// ValidateTemplate checks that t takes exactly the name and the amount
func ValidateTemplate(t string) error {
	if n := strings.Count(t, "%s"); n != 2 || strings.Count(t, "%") != 2 {
		return fmt.Errorf("template %q must contain exactly two %%s verbs", t)
	}
	return nil
}

// Option configures a Feed
type Option func(*Feed)

// WithCapacity sets the maximum number of entries. Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.capacity = n
		}
	}
}

// WithTemplates replaces the message templates. Invalid templates are
// skipped; if none is valid the defaults stay.
func WithTemplates(templates ...string) Option {
	return func(f *Feed) {
		var valid []string
		for _, t := range templates {
			if ValidateTemplate(t) == nil {
				valid = append(valid, t)
			}
		}
		if len(valid) > 0 {
			f.templates = valid
		}
	}
}

// WithRand sets the source used to pick templates
func WithRand(r *rand.Rand) Option {
	return func(f *Feed) {
		f.rng = r
	}
}

// WithMoneyFormatter sets how amounts are rendered
func WithMoneyFormatter(m MoneyFormatter) Option {
	return func(f *Feed) {
		if m != nil {
			f.money = m
		}
	}
}

// WithLogger sets the feed logger
func WithLogger(l *applog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// Feed is a bounded list of display strings, most recent first. It is
// fed from the ledger and never writes back to it.
type Feed struct {
	mu        sync.RWMutex
	entries   []string
	filter    string
	capacity  int
	templates []string
	rng       *rand.Rand
	money     MoneyFormatter
	logger    *applog.Logger
}

// New creates an empty feed
func New(opts ...Option) *Feed {
	f := &Feed{
		capacity:  DefaultCapacity,
		templates: DefaultTemplates,
		money:     NewMoneyFormatter(language.English, "$"),
		logger:    applog.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.WithComponent(applog.ComponentFeed)
	return f
}

// PushDonation formats d and inserts it at the top, dropping the oldest
// entry once the feed is full. It returns the new entry.
func (f *Feed) PushDonation(d core.Donation) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry := f.format(d)
	f.entries = append(f.entries, "")
	copy(f.entries[1:], f.entries)
	f.entries[0] = entry
	if len(f.entries) > f.capacity {
		f.entries = f.entries[:f.capacity]
	}
	return entry
}

func (f *Feed) format(d core.Donation) string {
	msg := fmt.Sprintf(f.pickTemplate(), d.Name(), f.money(d.Amount()))
	if at, ok := d.Timestamp(); ok {
		return at.Local().Format(core.TimestampLayout) + ": " + msg
	}
	return msg
}

// pickTemplate must be called with mu held; *rand.Rand is not safe for
// concurrent use.
func (f *Feed) pickTemplate() string {
	if len(f.templates) == 1 {
		return f.templates[0]
	}
	if f.rng != nil {
		return f.templates[f.rng.IntN(len(f.templates))]
	}
	return f.templates[rand.IntN(len(f.templates))]
}

// Replay pushes every donation of seq in order, as on a cold start. Only
// the most recent Capacity donations remain visible afterwards.
func (f *Feed) Replay(seq iter.Seq2[core.Donation, error]) error {
	n := 0
	for d, err := range seq {
		if err != nil {
			return fmt.Errorf("replay feed: %w", err)
		}
		f.PushDonation(d)
		n++
	}
	f.logger.Debug("Feed replayed", "donations", n, "visible", f.Len())
	return nil
}

// Filter returns the entries containing query, ignoring case, in feed
// order. A blank query matches everything. The feed is not modified.
func (f *Feed) Filter(query string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filterEntries(f.entries, query)
}

func filterEntries(entries []string, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if q == "" || strings.Contains(strings.ToLower(e), q) {
			out = append(out, e)
		}
	}
	return out
}

// SetFilter stores the query used by CurrentView
func (f *Feed) SetFilter(query string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = query
}

// CurrentView returns the entries matching the stored filter
func (f *Feed) CurrentView() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filterEntries(f.entries, f.filter)
}

// Clear removes every entry. The stored filter is kept.
func (f *Feed) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = nil
}

// Entries returns a copy of all entries, most recent first
func (f *Feed) Entries() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.entries...)
}

// Len returns the number of entries
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.entries)
}

// Capacity returns the maximum number of entries
func (f *Feed) Capacity() int {
	return f.capacity
}
