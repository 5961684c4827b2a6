package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hsms-trader/internal/domain"
)

// KIS OpenAPI transaction IDs. The virtual (paper) environment uses a
// V prefix, production a T prefix.
const (
	trBalanceVirtual = "VTTC8434R"
	trBalanceReal    = "TTTC8434R"
	trBuyVirtual     = "VTTC0802U"
	trBuyReal        = "TTTC0802U"
	trSellVirtual    = "VTTC0801U"
	trSellReal       = "TTTC0801U"
	trStatusVirtual  = "VTTC8001R"
	trStatusReal     = "TTTC8001R"

	// Quotation TR IDs are shared between environments.
	trDailyChart    = "FHKST03010100"
	trInvestorTrend = "FHKST01010900"
)

// KISConfig configures the Korea Investment & Securities client.
type KISConfig struct {
	AppKey             string
	AppSecret          string
	AccountNo          string // "CANO" or "CANO-PRDT"
	AccountProductCode string // used when AccountNo carries no product code
	BaseURL            string
	Virtual            bool
	Timeout            time.Duration
}

// KISBroker talks to the KIS OpenAPI over REST. It caches the OAuth
// access token and refreshes it shortly before expiry.
type KISBroker struct {
	cfg        KISConfig
	client     *http.Client
	cano       string
	acntPrdtCd string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

// Compile-time interface check.
var _ Broker = (*KISBroker)(nil)

// NewKISBroker creates a client from config. BaseURL defaults to the
// virtual or production endpoint depending on cfg.Virtual.
func NewKISBroker(cfg KISConfig) (*KISBroker, error) {
	if cfg.AppKey == "" || cfg.AppSecret == "" {
		return nil, fmt.Errorf("kis: app key and secret are required")
	}
	if cfg.AccountNo == "" {
		return nil, fmt.Errorf("kis: account number is required")
	}
	if cfg.BaseURL == "" {
		if cfg.Virtual {
			cfg.BaseURL = "https://openapivts.koreainvestment.com:29443"
		} else {
			cfg.BaseURL = "https://openapi.koreainvestment.com:9443"
		}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	cano, prdt := cfg.AccountNo, cfg.AccountProductCode
	if idx := strings.Index(cfg.AccountNo, "-"); idx >= 0 {
		cano, prdt = cfg.AccountNo[:idx], cfg.AccountNo[idx+1:]
	}
	if prdt == "" {
		prdt = "01"
	}

	return &KISBroker{
		cfg:        cfg,
		client:     &http.Client{Timeout: cfg.Timeout},
		cano:       cano,
		acntPrdtCd: prdt,
		now:        time.Now,
	}, nil
}

// ensureToken issues an OAuth token if none is cached or the cached
// one is within a minute of expiry.
func (b *KISBroker) ensureToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.now().Before(b.tokenExpiry) {
		return b.token, nil
	}

	payload := map[string]string{
		"grant_type": "client_credentials",
		"appkey":     b.cfg.AppKey,
		"appsecret":  b.cfg.AppSecret,
	}
	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := b.post(ctx, "/oauth2/tokenP", map[string]string{"content-type": "application/json"}, payload, &resp); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("issue token: empty access_token")
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - time.Minute
	if ttl < time.Minute {
		ttl = time.Minute
	}
	b.token = resp.AccessToken
	b.tokenExpiry = b.now().Add(ttl)
	return b.token, nil
}

func (b *KISBroker) authHeaders(ctx context.Context, trID string) (map[string]string, error) {
	token, err := b.ensureToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"content-type":  "application/json",
		"authorization": "Bearer " + token,
		"appkey":        b.cfg.AppKey,
		"appsecret":     b.cfg.AppSecret,
		"tr_id":         trID,
		"custtype":      "P",
	}, nil
}

// hashkey asks the API to sign an order body. Some environments reject
// orders without it.
func (b *KISBroker) hashkey(ctx context.Context, body any) (string, error) {
	token, err := b.ensureToken(ctx)
	if err != nil {
		return "", err
	}
	headers := map[string]string{
		"content-type":  "application/json",
		"authorization": "Bearer " + token,
		"appkey":        b.cfg.AppKey,
		"appsecret":     b.cfg.AppSecret,
	}
	var resp struct {
		Hash string `json:"HASH"`
	}
	if err := b.post(ctx, "/uapi/hashkey", headers, body, &resp); err != nil {
		return "", fmt.Errorf("hashkey: %w", err)
	}
	if resp.Hash == "" {
		return "", fmt.Errorf("hashkey: empty HASH")
	}
	return resp.Hash, nil
}

func (b *KISBroker) post(ctx context.Context, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return b.do(req, out)
}

func (b *KISBroker) get(ctx context.Context, path string, headers map[string]string, params url.Values, out any) error {
	u := b.cfg.BaseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return b.do(req, out)
}

func (b *KISBroker) do(req *http.Request, out any) error {
	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d for %s: %s", resp.StatusCode, req.URL.Path, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (b *KISBroker) balanceParams() url.Values {
	return url.Values{
		"CANO":                  {b.cano},
		"ACNT_PRDT_CD":          {b.acntPrdtCd},
		"AFHR_FLPR_YN":          {"N"},
		"OFL_YN":                {""},
		"INQR_DVSN":             {"02"},
		"UNPR_DVSN":             {"01"},
		"FUND_STTL_ICLD_YN":     {"N"},
		"FNCG_AMT_AUTO_RDPT_YN": {"N"},
		"PRCS_DVSN":             {"00"},
		"CTX_AREA_FK100":        {""},
		"CTX_AREA_NK100":        {""},
	}
}

func (b *KISBroker) balanceTrID() string {
	if b.cfg.Virtual {
		return trBalanceVirtual
	}
	return trBalanceReal
}

type balanceResponse struct {
	RtCd    string           `json:"rt_cd"`
	Msg1    string           `json:"msg1"`
	Output1 []map[string]any `json:"output1"`
	Output2 []map[string]any `json:"output2"`
}

// GetCash extracts the deposit balance from the account inquiry. The
// exact field differs by environment, so a few candidates are tried.
func (b *KISBroker) GetCash(ctx context.Context) (decimal.Decimal, error) {
	headers, err := b.authHeaders(ctx, b.balanceTrID())
	if err != nil {
		return decimal.Zero, err
	}

	var resp balanceResponse
	if err := b.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", headers, b.balanceParams(), &resp); err != nil {
		return decimal.Zero, fmt.Errorf("inquire balance: %w", err)
	}
	if len(resp.Output2) == 0 {
		return decimal.Zero, fmt.Errorf("inquire balance: empty output2")
	}

	summary := resp.Output2[0]
	for _, key := range []string{"dnca_tot_amt", "prvs_rcdl_excc_amt", "cma_evlu_amt", "tot_evlu_amt"} {
		raw, ok := summary[key]
		if !ok {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(raw))
		if s == "" {
			continue
		}
		if cash, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "")); err == nil {
			return cash, nil
		}
	}
	return decimal.Zero, fmt.Errorf("inquire balance: no parseable cash field")
}

// GetPositions extracts held quantities from the account inquiry.
func (b *KISBroker) GetPositions(ctx context.Context) (map[string]int64, error) {
	headers, err := b.authHeaders(ctx, b.balanceTrID())
	if err != nil {
		return nil, err
	}

	var resp balanceResponse
	if err := b.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-balance", headers, b.balanceParams(), &resp); err != nil {
		return nil, fmt.Errorf("inquire balance: %w", err)
	}

	positions := make(map[string]int64)
	for _, row := range resp.Output1 {
		symbol := strings.TrimSpace(fmt.Sprint(row["pdno"]))
		if symbol == "" || symbol == "<nil>" {
			continue
		}
		qty := parseQty(row, "hldg_qty", "ord_psbl_qty")
		if qty != 0 {
			positions[symbol] = qty
		}
	}
	return positions, nil
}

// PlaceOrder submits a cash limit order.
func (b *KISBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if err := validateRequest(req); err != nil {
		return OrderResult{}, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	var trID string
	switch {
	case b.cfg.Virtual && req.Side == domain.SideBuy:
		trID = trBuyVirtual
	case b.cfg.Virtual:
		trID = trSellVirtual
	case req.Side == domain.SideBuy:
		trID = trBuyReal
	default:
		trID = trSellReal
	}

	headers, err := b.authHeaders(ctx, trID)
	if err != nil {
		return OrderResult{}, err
	}

	body := map[string]string{
		"CANO":         b.cano,
		"ACNT_PRDT_CD": b.acntPrdtCd,
		"PDNO":         req.Symbol,
		"ORD_DVSN":     "01", // limit order
		"ORD_QTY":      strconv.FormatInt(req.Qty, 10),
		"ORD_UNPR":     req.Price.Round(0).StringFixed(0),
	}

	// hashkey is mandatory only in some environments; the order call
	// itself will fail if the server required one we could not get.
	if hk, err := b.hashkey(ctx, body); err == nil {
		headers["hashkey"] = hk
	}

	var resp struct {
		RtCd   string         `json:"rt_cd"`
		Msg1   string         `json:"msg1"`
		Output map[string]any `json:"output"`
	}
	if err := b.post(ctx, "/uapi/domestic-stock/v1/trading/order-cash", headers, body, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("order-cash: %w", err)
	}
	if resp.RtCd != "0" {
		return OrderResult{}, fmt.Errorf("%s: %w", strings.TrimSpace(resp.Msg1), ErrOrderRejected)
	}

	var orderID string
	for _, key := range []string{"ODNO", "odno"} {
		if v, ok := resp.Output[key]; ok {
			orderID = strings.TrimSpace(fmt.Sprint(v))
			break
		}
	}
	return OrderResult{OrderID: orderID, Message: strings.TrimSpace(resp.Msg1)}, nil
}

// GetOrderStatus looks the order up in today's execution inquiry.
func (b *KISBroker) GetOrderStatus(ctx context.Context, orderID string) (OrderStatus, error) {
	trID := trStatusReal
	if b.cfg.Virtual {
		trID = trStatusVirtual
	}
	headers, err := b.authHeaders(ctx, trID)
	if err != nil {
		return OrderStatus{}, err
	}

	today := b.now().Format("20060102")
	params := url.Values{
		"CANO":            {b.cano},
		"ACNT_PRDT_CD":    {b.acntPrdtCd},
		"INQR_STRT_DT":    {today},
		"INQR_END_DT":     {today},
		"SLL_BUY_DVSN_CD": {"00"},
		"INQR_DVSN":       {"01"},
		"PDNO":            {""},
		"CCLD_DVSN":       {"00"},
		"ORD_GNO_BRNO":    {""},
		"ODNO":            {orderID},
		"INQR_DVSN_3":     {"00"},
		"INQR_DVSN_1":     {"0"},
		"CTX_AREA_FK100":  {""},
		"CTX_AREA_NK100":  {""},
	}

	var resp struct {
		Output1 []map[string]any `json:"output1"`
	}
	if err := b.get(ctx, "/uapi/domestic-stock/v1/trading/inquire-daily-ccld", headers, params, &resp); err != nil {
		return OrderStatus{}, fmt.Errorf("inquire-daily-ccld: %w", err)
	}

	for _, rec := range resp.Output1 {
		odno := strings.TrimSpace(fmt.Sprint(rec["odno"]))
		if odno == "" || odno == "<nil>" {
			odno = strings.TrimSpace(fmt.Sprint(rec["ODNO"]))
		}
		if odno != orderID {
			continue
		}

		st := OrderStatus{
			OrderID:    orderID,
			OrderedQty: parseQty(rec, "ord_qty", "tot_ord_qty"),
			FilledQty:  parseQty(rec, "tot_ccld_qty", "ccld_qty"),
		}
		if st.OrderedQty >= st.FilledQty {
			st.UnfilledQty = st.OrderedQty - st.FilledQty
		}
		for _, key := range []string{"ord_stat_cd", "ord_stat", "status"} {
			if v, ok := rec[key]; ok {
				st.Status = strings.TrimSpace(fmt.Sprint(v))
				break
			}
		}
		return st, nil
	}
	return OrderStatus{}, fmt.Errorf("order %s: %w", orderID, ErrOrderNotFound)
}

// FetchDailyBars downloads daily OHLCV candles for [start, end].
func (b *KISBroker) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	headers, err := b.authHeaders(ctx, trDailyChart)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {symbol},
		"FID_INPUT_DATE_1":       {start.Format("20060102")},
		"FID_INPUT_DATE_2":       {end.Format("20060102")},
		"FID_PERIOD_DIV_CODE":    {"D"},
		"FID_ORG_ADJ_PRC":        {"1"}, // adjusted prices
	}

	var resp struct {
		Output2 []struct {
			Date   string `json:"stck_bsop_date"`
			Open   string `json:"stck_oprc"`
			High   string `json:"stck_hgpr"`
			Low    string `json:"stck_lwpr"`
			Close  string `json:"stck_clpr"`
			Volume string `json:"acml_vol"`
		} `json:"output2"`
	}
	if err := b.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice", headers, params, &resp); err != nil {
		return nil, fmt.Errorf("daily chart %s: %w", symbol, err)
	}

	var bars []domain.Bar
	for _, row := range resp.Output2 {
		date, err := time.ParseInLocation("20060102", row.Date, time.UTC)
		if err != nil {
			continue // the API pads responses with blank rows
		}
		bars = append(bars, domain.Bar{
			Date:   date,
			Open:   parsePrice(row.Open),
			High:   parsePrice(row.High),
			Low:    parsePrice(row.Low),
			Close:  parsePrice(row.Close),
			Volume: parsePrice(row.Volume),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

// FetchForeignNetBuy downloads the recent investor trend (roughly the
// last 30 trading days) and returns foreign net buy quantity by date.
func (b *KISBroker) FetchForeignNetBuy(ctx context.Context, symbol string) (map[time.Time]float64, error) {
	headers, err := b.authHeaders(ctx, trInvestorTrend)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"FID_COND_MRKT_DIV_CODE": {"J"},
		"FID_INPUT_ISCD":         {symbol},
	}

	var resp struct {
		Output []struct {
			Date    string `json:"stck_bsop_date"`
			Foreign string `json:"frgn_ntby_qty"`
		} `json:"output"`
	}
	if err := b.get(ctx, "/uapi/domestic-stock/v1/quotations/inquire-investor", headers, params, &resp); err != nil {
		return nil, fmt.Errorf("investor trend %s: %w", symbol, err)
	}

	out := make(map[time.Time]float64, len(resp.Output))
	for _, row := range resp.Output {
		date, err := time.ParseInLocation("20060102", row.Date, time.UTC)
		if err != nil {
			continue
		}
		out[date] = parsePrice(row.Foreign)
	}
	return out, nil
}

// FetchDailyBarsWithForeign merges candles with the foreign flow
// series. Dates outside the trend window keep a zero flow.
func (b *KISBroker) FetchDailyBarsWithForeign(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	bars, err := b.FetchDailyBars(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return bars, nil
	}

	foreign, err := b.FetchForeignNetBuy(ctx, symbol)
	if err != nil {
		return nil, err
	}
	for i := range bars {
		bars[i].ForeignNetBuy = foreign[bars[i].Date]
	}
	return bars, nil
}

func parseQty(rec map[string]any, keys ...string) int64 {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok {
			continue
		}
		s := strings.ReplaceAll(strings.TrimSpace(fmt.Sprint(raw)), ",", "")
		if s == "" || s == "<nil>" {
			continue
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
	}
	return 0
}

func parsePrice(raw string) float64 {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
