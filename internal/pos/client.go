package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"supplyrecon/internal"
	"supplyrecon/internal/config"
	"supplyrecon/internal/errx"
	"supplyrecon/internal/logx"
)

// Client talks to the POS HTTP API. It serves as both the catalog provider
// and the supply-creation backend.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
	strategies Strategies
	schedule   []time.Duration
	defaultTax decimal.Decimal
	sleep      func(context.Context, time.Duration) error
}

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pos status %d %s :: %s", e.Status, e.URL, e.Body)
}

type apiEnvelope struct {
	Response json.RawMessage `json:"response"`
	Error    json.RawMessage `json:"error"`
	Message  string          `json:"message"`
}

func NewClient(cfg config.Config) (*Client, error) {
	strategies, err := LoadStrategies(cfg.PosStrategiesFile)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindValidation, "load pos strategies")
	}
	schedule := cfg.RetrySchedule
	if len(schedule) == 0 {
		schedule = []time.Duration{0, 3 * time.Second, 5 * time.Second, 8 * time.Second}
	}
	timeout := cfg.PosTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    NewRateLimiter(cfg.PosRateLimitRPS),
		strategies: strategies,
		schedule:   schedule,
		defaultTax: decimal.NewFromFloat(cfg.DefaultTaxRate),
		sleep:      sleepCtx,
	}, nil
}

func (c *Client) ListSuppliers(ctx context.Context) ([]internal.Supplier, error) {
	var lastErr error
	sawEmpty := false
	for _, st := range c.strategies.Suppliers {
		body, err := c.request(ctx, st.Method, st.Params, nil)
		if err != nil {
			lastErr = err
			logx.Warn().Err(err).Str("method", st.Method).Msg("list suppliers failed")
			if st.continues(outcomeOf(err)) {
				continue
			}
			return nil, errx.Wrap(err, errx.KindCatalog, "list suppliers via "+st.Method)
		}
		items, err := decodeSuppliers(body)
		if err != nil {
			lastErr = err
			if st.continues(ContinueError) {
				continue
			}
			return nil, errx.Wrap(err, errx.KindCatalog, "decode suppliers from "+st.Method)
		}
		if len(items) == 0 {
			sawEmpty = true
			if st.continues(ContinueEmpty) {
				continue
			}
		}
		logx.Info().Str("method", st.Method).Int("count", len(items)).Msg("suppliers fetched")
		return items, nil
	}
	if sawEmpty {
		return []internal.Supplier{}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no supplier strategy configured")
	}
	return nil, errx.Wrap(lastErr, errx.KindCatalog, "all supplier methods failed")
}

func (c *Client) ListProducts(ctx context.Context) ([]internal.Product, error) {
	var lastErr error
	sawEmpty := false
	for _, st := range c.strategies.Products {
		body, err := c.request(ctx, st.Method, st.Params, nil)
		if err != nil {
			lastErr = err
			logx.Warn().Err(err).Str("method", st.Method).Msg("list products failed")
			if st.continues(outcomeOf(err)) {
				continue
			}
			return nil, errx.Wrap(err, errx.KindCatalog, "list products via "+st.Method)
		}
		items, err := decodeProducts(body)
		if err != nil {
			lastErr = err
			if st.continues(ContinueError) {
				continue
			}
			return nil, errx.Wrap(err, errx.KindCatalog, "decode products from "+st.Method)
		}
		if len(items) == 0 {
			sawEmpty = true
			if st.continues(ContinueEmpty) {
				continue
			}
		}
		logx.Info().Str("method", st.Method).Int("count", len(items)).Msg("products fetched")
		return items, nil
	}
	if sawEmpty {
		return []internal.Product{}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no product strategy configured")
	}
	return nil, errx.Wrap(lastErr, errx.KindCatalog, "all product methods failed")
}

// CreateSupply walks the create_supply chain. Only outcomes named in a
// strategy's continue_on move on; anything else stops the chain.
func (c *Client) CreateSupply(ctx context.Context, inv internal.ResolvedInvoice) (internal.SupplyID, error) {
	var lastErr error
	for _, st := range c.strategies.CreateSupply {
		var payload any
		if st.Payload == PayloadStorage {
			payload = c.storagePayload(inv.Invoice)
		} else {
			payload = c.genericPayload(inv.Invoice)
		}

		body, err := c.request(ctx, st.Method, st.Params, payload)
		if err != nil {
			lastErr = err
			logx.Warn().Err(err).Str("method", st.Method).Str("fingerprint", inv.Fingerprint).Msg("create supply failed")
			if st.continues(outcomeOf(err)) {
				continue
			}
			break
		}
		id := decodeSupplyID(body)
		logx.Info().Str("method", st.Method).Str("supply", string(id)).Msg("supply created")
		return id, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no create_supply strategy configured")
	}
	return "", errx.Wrap(lastErr, errx.KindBackend, "create supply")
}

func (c *Client) request(ctx context.Context, method string, params map[string]string, payload any) (json.RawMessage, error) {
	if strings.TrimSpace(c.cfg.PosAPIToken) == "" {
		return nil, errx.New(errx.KindValidation, "missing POSTER_API_TOKEN")
	}

	u, err := url.Parse(strings.TrimRight(c.cfg.PosAPIBaseURL, "/") + "/" + method)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindValidation, "build url")
	}
	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	q.Set("token", c.cfg.PosAPIToken)
	q.Set("format", "json")
	u.RawQuery = q.Encode()

	var blob []byte
	if payload != nil {
		if blob, err = json.Marshal(payload); err != nil {
			return nil, errx.Wrap(err, errx.KindValidation, "encode payload")
		}
	}

	var lastErr error
	for attempt, delay := range c.schedule {
		if delay > 0 {
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return nil, err
		}

		body, err := c.do(ctx, u.String(), blob)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !errx.Transient(err) {
			return nil, err
		}
		logx.Warn().Err(err).Str("method", method).Int("attempt", attempt+1).Msg("pos request failed, retrying")
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, target string, blob []byte) (json.RawMessage, error) {
	httpMethod := http.MethodGet
	var reader io.Reader
	if blob != nil {
		httpMethod = http.MethodPost
		reader = strings.NewReader(string(blob))
	}
	req, err := http.NewRequestWithContext(ctx, httpMethod, target, reader)
	if err != nil {
		return nil, errx.Wrap(err, errx.KindValidation, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if blob != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errx.Wrap(err, errx.KindBackend, "pos request").MarkTransient()
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, errx.Wrap(readErr, errx.KindBackend, "read pos response").MarkTransient()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{Status: resp.StatusCode, URL: redact(target), Body: truncate(string(body), 400)}
		wrapped := errx.Wrap(statusErr, errx.KindBackend, "pos api")
		if isRetryableStatus(resp.StatusCode) {
			wrapped.MarkTransient()
		}
		return nil, wrapped
	}

	// Some accounts answer text/html with JSON inside, so the header is ignored.
	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		var list []json.RawMessage
		if json.Unmarshal(body, &list) == nil {
			return body, nil
		}
		return nil, errx.Wrap(err, errx.KindValidation, "decode pos response")
	}
	if len(env.Error) > 0 && string(env.Error) != "null" && string(env.Error) != "0" {
		msg := env.Message
		if msg == "" {
			msg = string(env.Error)
		}
		return nil, errx.Newf(errx.KindBackend, "pos api error: %s", msg)
	}
	if len(env.Response) == 0 {
		return body, nil
	}
	return env.Response, nil
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func outcomeOf(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		return ContinueNotFound
	}
	if errx.Transient(err) {
		return ContinueTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ContinueTransient
	}
	return ContinueError
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
