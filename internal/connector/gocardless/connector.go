package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finanze/finanze/internal/config"
	entitydomain "github.com/finanze/finanze/internal/entity/domain"
	positiondomain "github.com/finanze/finanze/internal/position/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityID is the stable id of the GoCardless bank-account-data integration.
var EntityID = uuid.MustParse("2a9c7b10-8f4d-4a35-b2de-60c1f0a7e914")

const requestTimeout = 30 * time.Second

// Connector pulls account balances and transactions through the GoCardless
// bank account data API. The credential blob carries the API secrets plus the
// requisition created during the entity connect flow.
type Connector struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func New(cfg config.Config, log *zap.Logger) *Connector {
	return &Connector{
		baseURL: strings.TrimRight(cfg.GoCardlessBaseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.Named("connector.gocardless"),
	}
}

func (c *Connector) Entity() entitydomain.Entity {
	return entitydomain.Entity{
		ID:   EntityID,
		Name: "GoCardless",
		Type: entitydomain.EntityTypeExternalIntegration,
		Features: []entitydomain.Feature{
			entitydomain.FeaturePositions,
			entitydomain.FeatureTransactions,
		},
	}
}

func (c *Connector) CredentialFields() []string {
	return []string{"secret_id", "secret_key", "requisition_id"}
}

type sessionPayload struct {
	Access        string `json:"access"`
	RequisitionID string `json:"requisition_id"`
}

func (c *Connector) Login(ctx context.Context, credentials entitydomain.Credentials, params entitydomain.LoginParams) (entitydomain.LoginResult, error) {
	_ = params

	body, _ := json.Marshal(map[string]string{
		"secret_id":  credentials["secret_id"],
		"secret_key": credentials["secret_key"],
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v2/token/new/", bytes.NewReader(body))
	if err != nil {
		return entitydomain.LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return entitydomain.LoginResult{Code: entitydomain.LoginUnavailable, Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return entitydomain.LoginResult{Code: entitydomain.LoginInvalidCredentials}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return entitydomain.LoginResult{Code: entitydomain.LoginUnavailable, Message: "rate limited"}, nil
	case resp.StatusCode >= 500:
		return entitydomain.LoginResult{Code: entitydomain.LoginUnavailable}, nil
	case resp.StatusCode != http.StatusOK:
		return entitydomain.LoginResult{Code: entitydomain.LoginInvalidCredentials}, nil
	}

	var token struct {
		Access        string `json:"access"`
		AccessExpires int    `json:"access_expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return entitydomain.LoginResult{Code: entitydomain.LoginUnavailable, Message: err.Error()}, nil
	}

	payload, _ := json.Marshal(sessionPayload{
		Access:        token.Access,
		RequisitionID: credentials["requisition_id"],
	})
	return entitydomain.LoginResult{
		Code: entitydomain.LoginOK,
		Session: &entitydomain.SessionData{
			Expiration: time.Now().UTC().Add(time.Duration(token.AccessExpires) * time.Second),
			Payload:    payload,
		},
	}, nil
}

func (c *Connector) Fetch(ctx context.Context, session json.RawMessage, feature entitydomain.Feature, opts entitydomain.FetchOptions) (json.RawMessage, error) {
	var sess sessionPayload
	if err := json.Unmarshal(session, &sess); err != nil || sess.Access == "" {
		return nil, entitydomain.NewFetchError(entitydomain.FailSessionExpired, err)
	}

	accounts, err := c.listAccounts(ctx, sess)
	if err != nil {
		return nil, err
	}

	var payload positiondomain.Payload
	switch feature {
	case entitydomain.FeaturePositions:
		for _, account := range accounts {
			holding, err := c.accountBalance(ctx, sess, account)
			if err != nil {
				return nil, err
			}
			payload.Holdings = append(payload.Holdings, holding)
		}
	case entitydomain.FeatureTransactions:
		for _, account := range accounts {
			txs, err := c.accountTransactions(ctx, sess, account, opts.Deep)
			if err != nil {
				return nil, err
			}
			payload.Transactions = append(payload.Transactions, txs...)
		}
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
	c.log.Debug("gocardless connector disconnected")
}

func (c *Connector) listAccounts(ctx context.Context, sess sessionPayload) ([]string, error) {
	var requisition struct {
		Accounts []string `json:"accounts"`
	}
	url := fmt.Sprintf("%s/api/v2/requisitions/%s/", c.baseURL, sess.RequisitionID)
	if err := c.getJSON(ctx, sess, url, &requisition); err != nil {
		return nil, err
	}
	return requisition.Accounts, nil
}

func (c *Connector) accountBalance(ctx context.Context, sess sessionPayload, account string) (positiondomain.Holding, error) {
	var body struct {
		Balances []struct {
			BalanceAmount struct {
				Amount   decimal.Decimal `json:"amount"`
				Currency string          `json:"currency"`
			} `json:"balanceAmount"`
			BalanceType string `json:"balanceType"`
		} `json:"balances"`
	}
	url := fmt.Sprintf("%s/api/v2/accounts/%s/balances/", c.baseURL, account)
	if err := c.getJSON(ctx, sess, url, &body); err != nil {
		return positiondomain.Holding{}, err
	}
	if len(body.Balances) == 0 {
		return positiondomain.Holding{}, entitydomain.NewFetchError(entitydomain.FailUpstream, fmt.Errorf("no balances for account %s", account))
	}

	// Prefer the booked balance when the bank reports several types.
	chosen := body.Balances[0]
	for _, b := range body.Balances {
		if b.BalanceType == "interimBooked" || b.BalanceType == "closingBooked" {
			chosen = b
			break
		}
	}
	return positiondomain.Holding{
		Name:     "Account " + account,
		Amount:   chosen.BalanceAmount.Amount,
		Currency: strings.ToUpper(chosen.BalanceAmount.Currency),
	}, nil
}

func (c *Connector) accountTransactions(ctx context.Context, sess sessionPayload, account string, deep bool) ([]positiondomain.Transaction, error) {
	var body struct {
		Transactions struct {
			Booked []struct {
				TransactionID     string `json:"transactionId"`
				TransactionAmount struct {
					Amount   decimal.Decimal `json:"amount"`
					Currency string          `json:"currency"`
				} `json:"transactionAmount"`
				RemittanceInformationUnstructured string `json:"remittanceInformationUnstructured"`
				BookingDate                       string `json:"bookingDate"`
			} `json:"booked"`
		} `json:"transactions"`
	}

	url := fmt.Sprintf("%s/api/v2/accounts/%s/transactions/", c.baseURL, account)
	if deep {
		url += "?date_from=1970-01-01"
	}
	if err := c.getJSON(ctx, sess, url, &body); err != nil {
		return nil, err
	}

	txs := make([]positiondomain.Transaction, 0, len(body.Transactions.Booked))
	for _, tx := range body.Transactions.Booked {
		date, err := time.Parse("2006-01-02", tx.BookingDate)
		if err != nil {
			date = time.Time{}
		}
		txs = append(txs, positiondomain.Transaction{
			Reference: tx.TransactionID,
			Name:      tx.RemittanceInformationUnstructured,
			Amount:    tx.TransactionAmount.Amount,
			Currency:  strings.ToUpper(tx.TransactionAmount.Currency),
			Date:      date,
		})
	}
	return txs, nil
}

func (c *Connector) getJSON(ctx context.Context, sess sessionPayload, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.Access)

	resp, err := c.http.Do(req)
	if err != nil {
		return entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return entitydomain.NewFetchError(entitydomain.FailSessionExpired, nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return entitydomain.NewFetchError(entitydomain.FailRateLimited, nil)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return entitydomain.NewFetchError(entitydomain.FailUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return entitydomain.NewFetchError(entitydomain.FailUpstream, err)
	}
	return nil
}
