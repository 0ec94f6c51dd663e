package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"poly-dump-hedge/internal/clob"
	"poly-dump-hedge/internal/exec"
	"poly-dump-hedge/internal/market"

	"go.uber.org/zap"
)

// Client talks to the Gamma discovery API and the CLOB order endpoint. It
// implements market.Discoverer and exec.Submitter.
type Client struct {
	gammaURL string
	clobURL  string
	http     *http.Client
	signer   *clob.Signer
	log      *zap.Logger
	now      func() time.Time
}

func New(gammaURL, clobURL string, timeout time.Duration, signer *clob.Signer, log *zap.Logger) *Client {
	return &Client{
		gammaURL: gammaURL,
		clobURL:  clobURL,
		http:     &http.Client{Timeout: timeout},
		signer:   signer,
		log:      log,
		now:      time.Now,
	}
}

type gammaMarket struct {
	Slug         string    `json:"slug"`
	ClobTokenIDs string    `json:"clobTokenIds"`
	Outcomes     string    `json:"outcomes"`
	StartDate    time.Time `json:"startDate"`
	EndDate      time.Time `json:"endDate"`
}

// ActiveRound resolves the live round of a recurring series: the open market
// with the nearest future end time. Returns market.ErrNoActiveRound when the
// series has nothing live.
func (c *Client) ActiveRound(ctx context.Context, seriesSlug string) (market.RoundInfo, error) {
	query := url.Values{
		"series_slug": {seriesSlug},
		"active":      {"true"},
		"closed":      {"false"},
		"order":       {"endDate"},
		"ascending":   {"true"},
		"limit":       {"5"},
	}
	endpoint := fmt.Sprintf("%s/markets?%s", c.gammaURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return market.RoundInfo{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return market.RoundInfo{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return market.RoundInfo{}, fmt.Errorf("gamma http %d: %s", resp.StatusCode, string(body))
	}
	var markets []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return market.RoundInfo{}, err
	}
	now := c.now()
	for _, m := range markets {
		if !m.EndDate.After(now) {
			continue
		}
		round, err := roundFromGamma(m)
		if err != nil {
			if c.log != nil {
				c.log.Warn("skipping unparsable market", zap.String("slug", m.Slug), zap.Error(err))
			}
			continue
		}
		return round, nil
	}
	return market.RoundInfo{}, market.ErrNoActiveRound
}

// roundFromGamma maps the doubly-encoded token/outcome arrays onto UP/DOWN.
func roundFromGamma(m gammaMarket) (market.RoundInfo, error) {
	var tokenIDs []string
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &tokenIDs); err != nil {
		return market.RoundInfo{}, fmt.Errorf("clobTokenIds: %w", err)
	}
	var outcomes []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return market.RoundInfo{}, fmt.Errorf("outcomes: %w", err)
	}
	if len(tokenIDs) != 2 || len(outcomes) != 2 {
		return market.RoundInfo{}, fmt.Errorf("expected 2 outcomes, got %d/%d", len(outcomes), len(tokenIDs))
	}
	round := market.RoundInfo{Slug: m.Slug, Start: m.StartDate, End: m.EndDate}
	for i, outcome := range outcomes {
		switch outcome {
		case "Up", "UP", "Yes":
			round.UpToken = tokenIDs[i]
		case "Down", "DOWN", "No":
			round.DownToken = tokenIDs[i]
		}
	}
	if round.UpToken == "" || round.DownToken == "" {
		return market.RoundInfo{}, fmt.Errorf("unmapped outcomes %v", outcomes)
	}
	return round, nil
}

const baseUnits = 1_000_000

type wireOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type orderRequest struct {
	Order     wireOrder `json:"order"`
	OrderType string    `json:"orderType"`
}

type orderResponse struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg"`
	OrderID      string `json:"orderID"`
	Status       string `json:"status"`
	MakingAmount string `json:"makingAmount"`
	TakingAmount string `json:"takingAmount"`
}

// SubmitBuy signs and posts a fill-or-kill buy. A rejected order comes back
// as a result, not an error; errors are reserved for transport failures the
// executor may retry.
func (c *Client) SubmitBuy(ctx context.Context, order exec.Order) (exec.Result, error) {
	if c.signer == nil {
		return exec.Result{}, fmt.Errorf("live trading requires a signer")
	}
	maker := c.signer.Address().Hex()
	payload := clob.OrderPayload{
		Salt:        c.now().UnixNano(),
		Maker:       maker,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     order.TokenID,
		MakerAmount: int64(math.Round(order.LimitPrice * float64(order.Shares) * baseUnits)),
		TakerAmount: int64(order.Shares) * baseUnits,
	}
	signature, err := c.signer.SignOrder(payload)
	if err != nil {
		return exec.Result{}, err
	}
	body := orderRequest{
		Order: wireOrder{
			Salt:        payload.Salt,
			Maker:       maker,
			Signer:      maker,
			Taker:       payload.Taker,
			TokenID:     payload.TokenID,
			MakerAmount: strconv.FormatInt(payload.MakerAmount, 10),
			TakerAmount: strconv.FormatInt(payload.TakerAmount, 10),
			Expiration:  "0",
			Nonce:       "0",
			FeeRateBps:  "0",
			Side:        "BUY",
			Signature:   signature,
		},
		OrderType: "FOK",
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return exec.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.clobURL+"/order", bytes.NewReader(raw))
	if err != nil {
		return exec.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return exec.Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return exec.Result{}, fmt.Errorf("clob http %d: %s", resp.StatusCode, string(data))
	}
	var parsed orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return exec.Result{}, err
	}
	return resultFromResponse(parsed, order), nil
}

func resultFromResponse(resp orderResponse, order exec.Order) exec.Result {
	if !resp.Success {
		msg := resp.ErrorMsg
		if msg == "" {
			msg = "order rejected"
		}
		return exec.Result{Status: exec.StatusRejected, OrderID: resp.OrderID, Err: msg}
	}
	filledShares, _ := strconv.ParseFloat(resp.TakingAmount, 64)
	cost, _ := strconv.ParseFloat(resp.MakingAmount, 64)
	result := exec.Result{OrderID: resp.OrderID, TotalCost: cost}
	if filledShares > 0 {
		result.AvgPrice = cost / filledShares
	}
	switch {
	case resp.Status == "matched" && filledShares >= float64(order.Shares):
		result.Status = exec.StatusFilled
	case resp.Status == "matched" && filledShares > 0:
		result.Status = exec.StatusPartial
	case filledShares > 0:
		result.Status = exec.StatusPartial
	default:
		result.Status = exec.StatusPending
	}
	return result
}
