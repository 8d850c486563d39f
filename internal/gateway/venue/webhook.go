package venue

import (
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// FillEvent is a venue push notification that an order filled or a position
// changed. Payload shape varies per venue, so fields are extracted
// tolerantly; an event only ever triggers an early reconcile cycle for its
// account, never a direct state mutation.
type FillEvent struct {
	Type       string
	AccountID  string
	OrderID    string
	Symbol     string
	Quantity   float64
	Price      float64
	OccurredAt time.Time
}

// ParseFillEvent extracts a FillEvent from a raw webhook body. Unknown extra
// fields are ignored; a missing account id is an error because the event
// cannot be routed to a pipeline.
func ParseFillEvent(body []byte) (FillEvent, error) {
	if !gjson.ValidBytes(body) {
		return FillEvent{}, fmt.Errorf("webhook payload is not valid JSON")
	}
	doc := gjson.ParseBytes(body)

	ev := FillEvent{
		Type:     strings.ToLower(firstString(doc, "type", "event", "event_type")),
		OrderID:  firstString(doc, "order_id", "orderId", "id"),
		Symbol:   strings.ToUpper(firstString(doc, "symbol", "pair", "instrument")),
		Quantity: firstFloat(doc, "quantity", "amount", "filled_qty"),
		Price:    firstFloat(doc, "price", "fill_price", "avg_price"),
	}
	ev.AccountID = firstString(doc, "account_id", "accountId", "account")
	if ev.AccountID == "" {
		return FillEvent{}, fmt.Errorf("webhook payload missing account id")
	}
	if ts := doc.Get("timestamp"); ts.Exists() {
		switch {
		case ts.Type == gjson.Number:
			ev.OccurredAt = time.UnixMilli(ts.Int())
		default:
			if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
				ev.OccurredAt = t
			}
		}
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	return ev, nil
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(doc gjson.Result, paths ...string) float64 {
	for _, p := range paths {
		if v := doc.Get(p); v.Exists() && v.Type == gjson.Number {
			return v.Float()
		}
	}
	return 0
}
