package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"donations/internal/core"
	"donations/internal/export"
	applog "donations/internal/log"
	"donations/internal/services"
)

type donationJSON struct {
	Donor     string     `json:"donor"`
	Amount    string     `json:"amount"`
	DonatedAt *time.Time `json:"donated_at,omitempty"`
}

func toDonationJSON(d core.Donation) donationJSON {
	out := donationJSON{Donor: d.Name(), Amount: d.Amount().StringFixed(2)}
	if at, ok := d.Timestamp(); ok {
		out.DonatedAt = &at
	}
	return out
}

type progressJSON struct {
	Total   string  `json:"total"`
	Goal    string  `json:"goal"`
	Reached bool    `json:"reached"`
	Ratio   float64 `json:"ratio"`
}

type receiptJSON struct {
	Donation    donationJSON `json:"donation"`
	Total       string       `json:"total"`
	CrossedGoal bool         `json:"crossed_goal"`
	FeedEntry   string       `json:"feed_entry"`
}

type donationListJSON struct {
	Donations []donationJSON `json:"donations"`
	Count     int            `json:"count"`
	Total     string         `json:"total"`
}

type previewJSON struct {
	Amount        string  `json:"amount"`
	WillReachGoal bool    `json:"will_reach_goal"`
	RatioAfter    float64 `json:"ratio_after"`
}

type feedJSON struct {
	Query    string   `json:"query"`
	Entries  []string `json:"entries"`
	Capacity int      `json:"capacity"`
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	total := s.donations.Total()
	NewJSONResponse().Data(progressJSON{
		Total:   total.StringFixed(2),
		Goal:    s.donations.Goal().StringFixed(2),
		Reached: s.donations.HasReachedGoal(),
		Ratio:   s.donations.Ratio(total),
	}).Write(w)
}

func (s *Server) handleListDonations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list := donationListJSON{Donations: []donationJSON{}}
	sum := decimal.Zero
	for d, err := range s.donations.Donations(ctx) {
		if err != nil {
			applog.FromContext(ctx, s.logger).ErrorContext(ctx, "Failed to list donations", applog.FieldError, err)
			DomainError(err).Write(w)
			return
		}
		list.Donations = append(list.Donations, toDonationJSON(d))
		sum = sum.Add(d.Amount())
	}
	list.Count = len(list.Donations)
	list.Total = sum.StringFixed(2)
	NewJSONResponse().Data(list).Write(w)
}

func (s *Server) handleCreateDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx, s.logger)

	req, err := ParseDonationRequest(NewRequestBodyParser(w, r))
	if err != nil {
		if errors.Is(err, core.ErrInvalidAmount) {
			DomainError(err).Write(w)
			return
		}
		BadRequestError(CodeInvalidRequest, "request body must be JSON or form encoded").Write(w)
		return
	}

	receipt, entry, err := s.record(ctx, req)
	if err != nil {
		logger.WarnContext(ctx, "Donation rejected", applog.FieldError, err)
		DomainError(err).Write(w)
		return
	}

	if receipt.CrossedGoal {
		logger.InfoContext(ctx, "Goal reached",
			applog.FieldGoal, s.donations.Goal().String(),
			applog.FieldTotal, receipt.Total.String())
	}

	NewJSONResponse().
		Status(http.StatusCreated).
		Data(receiptJSON{
			Donation:    toDonationJSON(receipt.Donation),
			Total:       receipt.Total.StringFixed(2),
			CrossedGoal: receipt.CrossedGoal,
			FeedEntry:   entry,
		}).
		Write(w)
}

// record appends the donation and pushes it to the feed as one step.
func (s *Server) record(ctx context.Context, req DonationRequest) (services.Receipt, string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	receipt, err := s.donations.Record(ctx, req.Name, req.Amount)
	if err != nil {
		return services.Receipt{}, "", err
	}
	return receipt, s.feed.PushDonation(receipt.Donation), nil
}

// clear empties the ledger and then the feed. The feed is left alone when
// the ledger clear fails.
func (s *Server) clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.donations.ClearAll(ctx); err != nil {
		return err
	}
	s.feed.Clear()
	return nil
}

func (s *Server) handleClearDonations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.clear(ctx); err != nil {
		applog.FromContext(ctx, s.logger).ErrorContext(ctx, "Failed to clear donations", applog.FieldError, err)
		DomainError(err).Write(w)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePreviewDonation(w http.ResponseWriter, r *http.Request) {
	amount, err := core.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		DomainError(err).Write(w)
		return
	}
	NewJSONResponse().Data(previewJSON{
		Amount:        amount.StringFixed(2),
		WillReachGoal: s.donations.WillReachGoalWith(amount),
		RatioAfter:    s.donations.Ratio(s.donations.Total().Add(amount)),
	}).Write(w)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	query := sanitizeInput(r.URL.Query().Get("q"))
	entries := s.feed.Filter(query)
	if entries == nil {
		entries = []string{}
	}
	NewJSONResponse().Data(feedJSON{
		Query:    query,
		Entries:  entries,
		Capacity: s.feed.Capacity(),
	}).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := applog.FromContext(ctx, s.logger)

	var buf bytes.Buffer
	if _, err := export.WriteXLSX(ctx, &buf, s.donations.Donations(ctx), logger); err != nil {
		logger.ErrorContext(ctx, "Failed to export donations", applog.FieldError, err)
		DomainError(err).Write(w)
		return
	}

	filename := "donations-" + time.Now().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}
