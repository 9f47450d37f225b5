package etherscan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/finanze/finanze/internal/config"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityID is the stable id of the Etherscan wallet integration.
var EntityID = uuid.MustParse("b4f0c3a2-6d1e-49e7-8c55-2f9d8a10e3b7")

const (
	requestTimeout = 30 * time.Second
	sessionTTL     = 24 * time.Hour

	shallowTxLimit = 25
)

// weiPerEther scales raw balances; Etherscan reports integers in wei.
var weiPerEther = decimal.New(1, 18)

// Connector reads an Ethereum wallet through the Etherscan API. There is no
// real login upstream; credentials are validated with a balance call and the
// session marks the validated address.
type Connector struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Connector {
	return &Connector{
		baseURL: strings.TrimRight(cfg.EtherscanBaseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.Named("connector.etherscan"),
	}
}

func (c *Connector) Entity() entitydomain.Entity {
	return entitydomain.Entity{
		ID:   EntityID,
		Name: "Etherscan",
		Type: entitydomain.EntityTypeCryptoWallet,
		Features: []entitydomain.Feature{
			entitydomain.FeaturePositions,
			entitydomain.FeatureTransactions,
		},
	}
}

func (c *Connector) CredentialFields() []string {
	return []string{"address", "api_key"}
}

type sessionPayload struct {
	Address string `json:"address"`
	APIKey  string `json:"api_key"`
}

func (c *Connector) Login(ctx context.Context, credentials entitydomain.Credentials, params entitydomain.LoginParams) (entitydomain.LoginResult, error) {
	_ = params

	sess := sessionPayload{Address: credentials["address"], APIKey: credentials["api_key"]}
	if _, err := c.balance(ctx, sess); err != nil {
		kind := entitydomain.FailureKindOf(err)
		if kind == entitydomain.FailSessionExpired {
			return entitydomain.LoginResult{Code: entitydomain.LoginInvalidCredentials}, nil
		}
		return entitydomain.LoginResult{Code: entitydomain.LoginUnavailable, Message: err.Error()}, nil
	}

	payload, _ := json.Marshal(sess)
	return entitydomain.LoginResult{
		Code: entitydomain.LoginOK,
		Session: &entitydomain.SessionData{
			Expiration: time.Now().UTC().Add(sessionTTL),
			Payload:    payload,
		},
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, session json.RawMessage, feature entitydomain.Feature, opts entitydomain.FetchOptions) (json.RawMessage, error) {
	var sess sessionPayload
	if err := json.Unmarshal(session, &sess); err != nil || sess.Address == "" {
		return nil, entitydomain.NewFetchError(entitydomain.FailSessionExpired, err)
	}

	var payload positiondomain.Payload
	switch feature {
	case entitydomain.FeaturePositions:
		amount, err := c.balance(ctx, sess)
		if err != nil {
			return nil, err
		}
		payload.Holdings = []positiondomain.Holding{
			{Name: "Wallet " + sess.Address, Symbol: "ETH", Amount: amount, Currency: "ETH"},
		}
	case entitydomain.FeatureTransactions:
		txs, err := c.transactions(ctx, sess, opts.Deep)
		if err != nil {
			return nil, err
		}
		payload.Transactions = txs
	default:
		return nil, entitydomain.NewFetchError(entitydomain.FailUnsupported, nil)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	return raw, nil
}

func (c *Connector) Disconnect(ctx context.Context) {
	_ = ctx
	c.log.Debug("etherscan connector disconnected")
}

func (c *Connector) balance(ctx context.Context, sess sessionPayload) (decimal.Decimal, error) {
	result, err := c.call(ctx, sess, url.Values{
		"module":  {"account"},
		"action":  {"balance"},
		"address": {sess.Address},
		"tag":     {"latest"},
	})
	if err != nil {
		return decimal.Decimal{}, err
	}

	var wei string
	if err := json.Unmarshal(result, &wei); err != nil {
		return decimal.Decimal{}, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	raw, err := decimal.NewFromString(wei)
	if err != nil {
		return decimal.Decimal{}, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	return raw.DivRound(weiPerEther, 18), nil
}

func (c *Connector) transactions(ctx context.Context, sess sessionPayload, deep bool) ([]positiondomain.Transaction, error) {
	params := url.Values{
		"module":  {"account"},
		"action":  {"txlist"},
		"address": {sess.Address},
		"sort":    {"desc"},
	}
	if !deep {
		params.Set("page", "1")
		params.Set("offset", fmt.Sprint(shallowTxLimit))
	}

	result, err := c.call(ctx, sess, params)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		Hash      string `json:"hash"`
		From      string `json:"from"`
		To        string `json:"to"`
		Value     string `json:"value"`
		TimeStamp string `json:"timeStamp"`
	}
	if err := json.Unmarshal(result, &rows); err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}

	txs := make([]positiondomain.Transaction, 0, len(rows))
	for _, row := range rows {
		wei, err := decimal.NewFromString(row.Value)
		if err != nil {
			continue
		}
		amount := wei.DivRound(weiPerEther, 18)
		if strings.EqualFold(row.From, sess.Address) {
			amount = amount.Neg()
		}
		var date time.Time
		var unix int64
		if _, err := fmt.Sscan(row.TimeStamp, &unix); err == nil {
			date = time.Unix(unix, 0).UTC()
		}
		txs = append(txs, positiondomain.Transaction{
			Reference: row.Hash,
			Name:      "Transfer " + row.From + " -> " + row.To,
			Amount:    amount,
			Currency:  "ETH",
			Date:      date,
		})
	}
	return txs, nil
}

// call performs an Etherscan API request and returns the raw result field.
// Etherscan signals errors in-band with status "0".
func (c *Connector) call(ctx context.Context, sess sessionPayload, params url.Values) (json.RawMessage, error) {
	params.Set("apikey", sess.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api?"+params.Encode(), nil)
	if err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, entitydomain.NewFetchError(entitydomain.FailRateLimited, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, fmt.Errorf("status %d", resp.StatusCode))
	}

	var body struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	if body.Status == "0" && body.Message != "No transactions found" {
		if strings.Contains(strings.ToLower(body.Message), "rate limit") {
			return nil, entitydomain.NewFetchError(entitydomain.FailRateLimited, fmt.Errorf("%s", body.Message))
		}
		if strings.Contains(strings.ToLower(body.Message), "invalid api key") {
			return nil, entitydomain.NewFetchError(entitydomain.FailSessionExpired, fmt.Errorf("%s", body.Message))
		}
		return nil, entitydomain.NewFetchError(entitydomain.FailUpstream, fmt.Errorf("%s", body.Message))
	}
	return body.Result, nil
}
