package parse

import "strings"

// Auction result statuses as persisted in the store.
const (
	ResultSold       = "sold"
	ResultCarence    = "carence"
	ResultNonRequise = "non_requise"
)

// AuctionResult is the decoded outcome of a past hearing row. A zero Status
// means the row was ambiguous and must be skipped.
type AuctionResult struct {
	Status     string
	FinalPrice int64
	ResultDate string // ISO YYYY-MM-DD; may be empty even when sold
}

// Result decodes the text of a result line together with the text of its
// price element (empty when the page carries none). Formats seen upstream:
//
//	"05-02-2026 : 58 000 €"  -> sold, 58000, 2026-02-05
//	"Carence d'enchères"     -> carence
//	"Vente non requise"      -> non_requise
//
// A date without a parseable price is ambiguous and yields a zero result.
func Result(text, priceText string) AuctionResult {
	lower := strings.ToLower(strings.TrimSpace(text))
	if strings.Contains(lower, "carence") {
		return AuctionResult{Status: ResultCarence}
	}
	if strings.Contains(lower, "non requise") {
		return AuctionResult{Status: ResultNonRequise}
	}

	var resultDate string
	if m := resultDateRe.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		resultDate = m[3] + "-" + m[2] + "-" + m[1]
	}

	if price, ok := Price(priceText); ok {
		return AuctionResult{Status: ResultSold, FinalPrice: price, ResultDate: resultDate}
	}
	return AuctionResult{}
}
