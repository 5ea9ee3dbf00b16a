// Package usecase contains application business logic services.
package usecase

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Scraper drives one leased task through navigation, page state
// detection and the per-state decision table. It never returns an
// error: every failure folds into an error Outcome so the slot loop
// can settle the lease and decide on proxy rotation.
type Scraper struct {
	Detector        domain.PageDetector
	Parser          domain.CardParser
	Captcha         domain.CaptchaResolver
	CaptchaAttempts int
}

// NewScraper constructs a Scraper with its collaborators.
func NewScraper(d domain.PageDetector, p domain.CardParser, c domain.CaptchaResolver, captchaAttempts int) Scraper {
	if captchaAttempts < 1 {
		captchaAttempts = 3
	}
	return Scraper{Detector: d, Parser: p, Captcha: c, CaptchaAttempts: captchaAttempts}
}

// ProcessTask navigates to the task's listing, classifies the page and
// produces the attempt's Outcome. The logger is the slot logger, it
// already carries worker_id, slot and proxy.
func (s Scraper) ProcessTask(ctx domain.Context, log *slog.Logger, task domain.Task, page domain.Session) domain.Outcome {
	log.Info("task_start",
		slog.Int64("task_id", task.ID),
		slog.Int64("item_id", task.ItemID),
		slog.Int("attempt", task.Attempts))

	if err := page.Goto(ctx, domain.ListingURL(task.ItemID)); err != nil {
		rotate := errors.Is(err, domain.ErrProxyFailure)
		log.Error("worker_error",
			slog.Int64("item_id", task.ItemID),
			slog.String("stage", "navigation"),
			slog.Any("error", err),
			slog.Bool("rotate_proxy", rotate))
		return errOutcome(domain.FailureNavigation, rotate)
	}

	state, err := s.Detector.Detect(ctx, page)
	if err != nil {
		log.Error("detection_error",
			slog.Int64("item_id", task.ItemID),
			slog.Any("error", err))
		return errOutcome(domain.FailureDetection, true)
	}
	log.Info("worker_detect_state",
		slog.Int64("item_id", task.ItemID),
		slog.String("state", string(state)))

	switch state {
	case domain.StateCaptcha, domain.StateContinueButton, domain.StateProxyBlock429:
		return s.handleChallenge(ctx, log, task, page)
	case domain.StateProxyBlock403:
		log.Warn("proxy_blocked",
			slog.Int64("item_id", task.ItemID),
			slog.String("reason", "http_403"))
		return errOutcome(domain.FailureProxyBlocked403, true)
	case domain.StateProxyAuth407:
		log.Warn("proxy_blocked",
			slog.Int64("item_id", task.ItemID),
			slog.String("reason", "http_407"))
		return errOutcome(domain.FailureProxyBlocked407, true)
	case domain.StateCardFound:
		return s.handleCardFound(ctx, log, task, page)
	case domain.StateRemoved:
		return handleRemoved(log, task)
	case domain.StateSellerProfile, domain.StateCatalog:
		log.Warn("unexpected_state",
			slog.Int64("item_id", task.ItemID),
			slog.String("state", string(state)))
		return errOutcome(domain.FailureUnexpectedState(state), false)
	default:
		return errOutcome(domain.FailureUnknownState(state), true)
	}
}

// handleChallenge runs the captcha flow and re-detects once. A page
// that survived the resolver keeps its proxy out of rotation only when
// the failure is not challenge-shaped.
func (s Scraper) handleChallenge(ctx domain.Context, log *slog.Logger, task domain.Task, page domain.Session) domain.Outcome {
	solved, err := s.Captcha.Resolve(ctx, page, s.CaptchaAttempts)
	if err != nil || !solved {
		log.Warn("captcha_failed",
			slog.Int64("item_id", task.ItemID),
			slog.Any("error", err))
		return errOutcome(domain.FailureCaptcha, true)
	}

	state, err := s.Detector.Detect(ctx, page)
	if err != nil {
		log.Error("detection_error",
			slog.Int64("item_id", task.ItemID),
			slog.Bool("after_captcha", true),
			slog.Any("error", err))
		return errOutcome(domain.FailureDetection, false)
	}
	log.Info("captcha_resolved",
		slog.Int64("item_id", task.ItemID),
		slog.String("new_state", string(state)))

	switch state {
	case domain.StateCardFound:
		return s.handleCardFound(ctx, log, task, page)
	case domain.StateRemoved:
		return handleRemoved(log, task)
	default:
		return errOutcome(domain.FailureUnexpectedAfterCaptcha(state), false)
	}
}

// handleCardFound parses the listing card and builds the success
// Result. An item id printed on the card that disagrees with the task
// is logged and tolerated; the task's id wins.
func (s Scraper) handleCardFound(ctx domain.Context, log *slog.Logger, task domain.Task, page domain.Session) domain.Outcome {
	html, err := page.Content(ctx)
	if err != nil {
		log.Error("task_parse_error",
			slog.Int64("item_id", task.ItemID),
			slog.Any("error", err))
		return errOutcome(domain.FailureParseCard, false)
	}
	card, err := s.Parser.ParseCard(html)
	if err != nil {
		log.Error("task_parse_error",
			slog.Int64("item_id", task.ItemID),
			slog.Any("error", err))
		return errOutcome(domain.FailureParseCard, false)
	}
	if card.ItemID != 0 && card.ItemID != task.ItemID {
		log.Warn("task_item_mismatch",
			slog.Int64("item_id", task.ItemID),
			slog.Int64("card_item_id", card.ItemID))
	}
	res := buildResult(task, card)
	return domain.Outcome{Status: domain.OutcomeSuccess, Result: &res}
}

// handleRemoved records a delisted item as unavailable with no
// failure reason.
func handleRemoved(log *slog.Logger, task domain.Task) domain.Outcome {
	log.Info("task_missing", slog.Int64("item_id", task.ItemID))
	res := domain.Result{
		ItemID:   task.ItemID,
		Status:   domain.ResultUnavailable,
		WorkerID: leaseWorker(task),
		Attempts: task.Attempts,
	}
	return domain.Outcome{Status: domain.OutcomeUnavailable, Result: &res}
}

func errOutcome(reason string, rotate bool) domain.Outcome {
	return domain.Outcome{Status: domain.OutcomeError, FailureReason: reason, RotateProxy: rotate}
}

func buildResult(task domain.Task, card domain.CardData) domain.Result {
	res := domain.Result{
		ItemID:           task.ItemID,
		Title:            card.Title,
		Description:      card.Description,
		Characteristics:  card.Characteristics,
		PublishedAt:      card.PublishedAt,
		SellerName:       card.SellerName,
		SellerProfileURL: card.SellerProfileURL,
		LocationAddress:  card.LocationAddress,
		LocationMetro:    card.LocationMetro,
		LocationRegion:   card.LocationRegion,
		Status:           domain.ResultSuccess,
		WorkerID:         leaseWorker(task),
		Attempts:         task.Attempts,
	}
	if card.Price != nil {
		res.Price = NormalizePrice(*card.Price)
	}
	if card.ViewsTotal != nil {
		res.ViewsTotal = ParseViews(*card.ViewsTotal)
	}
	return res
}

func leaseWorker(task domain.Task) string {
	if task.WorkerID == nil {
		return ""
	}
	return *task.WorkerID
}

// NormalizePrice coerces a raw price string to a fixed-point decimal
// with two fraction digits ("50" becomes "50.00"). Anything that does
// not parse as a finite number yields nil, never an error.
func NormalizePrice(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	out := strconv.FormatFloat(f, 'f', 2, 64)
	return &out
}

// ParseViews coerces the raw views counter to an int, nil when the
// value is not a plain integer.
func ParseViews(raw string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &n
}
