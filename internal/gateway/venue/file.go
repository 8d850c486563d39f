package venue

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"vigil/internal/gateway/price"
	"vigil/internal/types"

	"github.com/tidwall/gjson"
)

// FileGateway serves venue truth from a JSON document on disk. It backs dry
// runs, fixtures and venues that export state by file drop; the document is
// re-read on every call so edits show up next cycle. A live venue client
// plugs in through the same Venue interface.
type FileGateway struct {
	path string
}

func NewFileGateway(path string) *FileGateway {
	return &FileGateway{path: path}
}

func (g *FileGateway) ListPositions(ctx context.Context, accountID string) ([]types.VenuePosition, error) {
	doc, err := g.read()
	if err != nil {
		return nil, err
	}
	acct := doc.Get("accounts." + escapeKey(accountID))
	if !acct.Exists() {
		return nil, nil
	}
	var out []types.VenuePosition
	acct.Get("positions").ForEach(func(_, pos gjson.Result) bool {
		out = append(out, types.VenuePosition{
			AccountID:  accountID,
			Symbol:     strings.ToUpper(pos.Get("symbol").String()),
			Quantity:   pos.Get("quantity").Float(),
			AvgCost:    pos.Get("avg_cost").Float(),
			UpdatedAt:  parseTime(pos.Get("updated_at")),
			RawPayload: pos.Raw,
		})
		return true
	})
	return out, nil
}

func (g *FileGateway) ListOrders(ctx context.Context, accountID, since string) ([]types.VenueOrder, error) {
	doc, err := g.read()
	if err != nil {
		return nil, err
	}
	cutoff := int64(0)
	if since != "" {
		if v, err := strconv.ParseInt(since, 10, 64); err == nil {
			cutoff = v
		}
	}
	var out []types.VenueOrder
	doc.Get("accounts." + escapeKey(accountID) + ".orders").ForEach(func(_, ord gjson.Result) bool {
		updated := parseTime(ord.Get("updated_at"))
		if cutoff > 0 && updated.UnixNano() <= cutoff {
			return true
		}
		out = append(out, types.VenueOrder{
			ID:           ord.Get("id").String(),
			AccountID:    accountID,
			Symbol:       strings.ToUpper(ord.Get("symbol").String()),
			Side:         types.Side(strings.ToLower(ord.Get("side").String())),
			Quantity:     ord.Get("quantity").Float(),
			FilledQty:    ord.Get("filled_qty").Float(),
			AvgFillPrice: ord.Get("avg_fill_price").Float(),
			Status:       ord.Get("status").String(),
			UpdatedAt:    updated,
		})
		return true
	})
	return out, nil
}

func (g *FileGateway) AccountEquity(ctx context.Context, accountID string) (float64, error) {
	doc, err := g.read()
	if err != nil {
		return 0, err
	}
	equity := doc.Get("accounts." + escapeKey(accountID) + ".equity")
	if !equity.Exists() {
		return 0, ErrUnavailable
	}
	return equity.Float(), nil
}

// CurrentPrice makes the gateway double as a price source for dry runs.
func (g *FileGateway) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	doc, err := g.read()
	if err != nil {
		return 0, price.ErrUnavailable
	}
	px := doc.Get("prices." + escapeKey(strings.ToUpper(symbol)))
	if !px.Exists() || px.Float() <= 0 {
		return 0, price.ErrUnavailable
	}
	return px.Float(), nil
}

func (g *FileGateway) read() (gjson.Result, error) {
	raw, err := os.ReadFile(g.path)
	if err != nil {
		return gjson.Result{}, ErrUnavailable
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, ErrUnavailable
	}
	return gjson.ParseBytes(raw), nil
}

// escapeKey protects gjson path syntax in account ids and symbols.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

func parseTime(v gjson.Result) time.Time {
	switch {
	case v.Type == gjson.Number:
		return time.UnixMilli(v.Int())
	case v.Exists():
		if t, err := time.Parse(time.RFC3339, v.String()); err == nil {
			return t
		}
	}
	return time.Time{}
}
