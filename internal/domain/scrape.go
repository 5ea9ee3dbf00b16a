package domain

import "strconv"

// PageState classifies what a fetched listing page turned out to be.
type PageState string

const (
	StateProxyBlock403  PageState = "proxy_block_403"
	StateProxyAuth407   PageState = "proxy_auth_407"
	StateProxyBlock429  PageState = "proxy_block_429"
	StateCaptcha        PageState = "captcha"
	StateRemoved        PageState = "removed"
	StateSellerProfile  PageState = "seller_profile"
	StateCatalog        PageState = "catalog"
	StateCardFound      PageState = "card_found"
	StateContinueButton PageState = "continue_button"
	StateUnknown        PageState = "unknown"
)

// DetectionPriority orders state checks; the first match wins. Block
// and challenge states outrank content states so a captcha overlaying
// a card is still handled as a captcha.
var DetectionPriority = []PageState{
	StateProxyBlock403,
	StateProxyAuth407,
	StateProxyBlock429,
	StateCaptcha,
	StateRemoved,
	StateSellerProfile,
	StateCatalog,
	StateCardFound,
	StateContinueButton,
}

// Failure reasons recorded on error outcomes.
const (
	FailureProxyBlocked403 = "proxy_blocked_http_403"
	FailureProxyBlocked407 = "proxy_blocked_http_407"
	FailureCaptcha         = "captcha_failed"
	FailureParseCard       = "parse_card_error"
	FailureDetection       = "detection_error"
	FailureNavigation      = "navigation_error"
)

func FailureUnexpectedState(s PageState) string { return "unexpected_state_" + string(s) }

func FailureUnknownState(s PageState) string { return "unknown_state_" + string(s) }

func FailureUnexpectedAfterCaptcha(s PageState) string {
	return "unexpected_after_captcha_" + string(s)
}

type OutcomeStatus string

const (
	OutcomeSuccess     OutcomeStatus = "success"
	OutcomeUnavailable OutcomeStatus = "unavailable"
	OutcomeError       OutcomeStatus = "error"
)

// Outcome is the verdict for one task attempt. Result is set only for
// success and unavailable; FailureReason only for error. RotateProxy
// asks the slot to retire its proxy before the next task.
type Outcome struct {
	Status        OutcomeStatus
	Result        *Result
	FailureReason string
	RotateProxy   bool
}

// CardData is the raw parse of a listing card. Price and ViewsTotal
// stay strings here; normalization happens when building the Result.
type CardData struct {
	ItemID           int64
	Title            *string
	Description      *string
	Characteristics  map[string]string
	Price            *string
	PublishedAt      *string
	SellerName       *string
	SellerProfileURL *string
	LocationAddress  *string
	LocationMetro    *string
	LocationRegion   *string
	ViewsTotal       *string
}

const listingBase = "https://www.avito.ru/"

// ListingURL builds the public listing URL for an item id.
func ListingURL(itemID int64) string { return listingBase + strconv.FormatInt(itemID, 10) }

// Collaborators (ports)

// Driver builds browsing sessions routed through a proxy. Display is
// the slot ordinal, kept for parity with screenful drivers that pin a
// virtual display per slot.
type Driver interface {
	NewSession(ctx Context, proxy ProxyAddr, display int) (Session, error)
}

// Session is one proxied page handle. Goto failures caused by the
// proxy itself wrap ErrProxyFailure.
type Session interface {
	Goto(ctx Context, url string) error
	Content(ctx Context) (string, error)
	URL() string
	Close()
}

type PageDetector interface {
	// Detect classifies the current page, returning StateUnknown when
	// nothing matches. An error means the page could not be inspected.
	Detect(ctx Context, s Session) (PageState, error)
}

type CardParser interface {
	ParseCard(html string) (CardData, error)
}

type CaptchaResolver interface {
	// Resolve attempts to clear a challenge in place. False means the
	// challenge survived all attempts.
	Resolve(ctx Context, s Session, maxAttempts int) (bool, error)
}
