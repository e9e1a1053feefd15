// Package upstream fetches an institution's own view of its transactions.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jerry-enebeli/conciliation/config"
	"github.com/jerry-enebeli/conciliation/internal/request"
	"github.com/jerry-enebeli/conciliation/model"
)

// Fetcher returns the institution side for a date window.
type Fetcher interface {
	FetchTransactions(ctx context.Context, q Query) ([]model.TransactionRecord, error)
}

// Query selects the institution, window and services to ask for.
// Domain is the institution's base URL.
type Query struct {
	InstitutionCode int
	Domain          string
	StartDate       string
	EndDate         string
	ServiceList     []string
}

// ErrRejected is returned when the institution answers with a non-success status.
var ErrRejected = errors.New("institution rejected the transaction request")

type fetchRequest struct {
	StartDate   string   `json:"startDate"`
	EndDate     string   `json:"endDate"`
	ServiceList []string `json:"serviceList"`
}

// proxyRequest wraps the call when institutions are only reachable through a relay.
type proxyRequest struct {
	URL  string       `json:"url"`
	Data fetchRequest `json:"data"`
}

type fetchResponse struct {
	Status  int                 `json:"status"`
	Message string              `json:"message"`
	Data    []remoteTransaction `json:"data"`
}

// flexString accepts either a JSON string or a JSON number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(b)
	return nil
}

type remoteTransaction struct {
	UUID                string          `json:"uuid"`
	CutOffNumber        flexString      `json:"cutOffNumber"`
	CutOffDate          string          `json:"cutOffDate"`
	TransactionDate     string          `json:"transactionDate"`
	AccountTypeID       flexString      `json:"accountTypeId"`
	AccountNumber       flexString      `json:"accountNumber"`
	TransactionValue    decimal.Decimal `json:"transactionValue"`
	MovementCode        flexString      `json:"movementCode"`
	TransactionType     string          `json:"transactionType"`
	InstitutionCode     int             `json:"institutionCode"`
	ServiceCode         flexString      `json:"serviceCode"`
	TransactionStatus   int             `json:"transactionStatus"`
	ReverseMovementCode flexString      `json:"reverseMovementCode"`
}

// Client talks to institution transaction services over HTTP.
type Client struct {
	http     *http.Client
	proxyURL string
	path     string
	loc      *time.Location
}

// NewClient builds a client from the institution service settings.
func NewClient(cfg config.InstitutionServiceConfig, loc *time.Location) *Client {
	return &Client{
		http:     request.NewClient(time.Duration(cfg.TimeoutSeconds)*time.Second, cfg.SkipTLSVerify),
		proxyURL: cfg.ProxyURL,
		path:     cfg.TransactionPath,
		loc:      loc,
	}
}

// FetchTransactions posts the window to the institution and converts the answer.
func (c *Client) FetchTransactions(ctx context.Context, q Query) ([]model.TransactionRecord, error) {
	target := strings.TrimRight(q.Domain, "/") + c.path
	body := fetchRequest{StartDate: q.StartDate, EndDate: q.EndDate, ServiceList: q.ServiceList}
	if body.ServiceList == nil {
		body.ServiceList = []string{}
	}

	var payload interface{} = body
	endpoint := target
	if c.proxyURL != "" {
		payload = proxyRequest{URL: target, Data: body}
		endpoint = c.proxyURL
	}

	var resp fetchResponse
	if _, err := request.PostJSON(ctx, c.http, endpoint, payload, &resp); err != nil {
		return nil, fmt.Errorf("fetching transactions for institution %d: %w", q.InstitutionCode, err)
	}
	if resp.Status != 1 || resp.Data == nil {
		return nil, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}

	records := make([]model.TransactionRecord, 0, len(resp.Data))
	for i, item := range resp.Data {
		record, err := c.toRecord(item)
		if err != nil {
			return nil, fmt.Errorf("institution %d item %d: %w", q.InstitutionCode, i, err)
		}
		records = append(records, record)
	}

	logrus.WithFields(logrus.Fields{
		"institution": q.InstitutionCode,
		"from":        q.StartDate,
		"to":          q.EndDate,
		"count":       len(records),
	}).Info("institution transactions fetched")
	return records, nil
}

func (c *Client) toRecord(item remoteTransaction) (model.TransactionRecord, error) {
	txnDate, err := model.ParseLocalTimestamp(item.TransactionDate, c.loc)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	return model.TransactionRecord{
		BusinessKey:          item.UUID,
		MovementCode:         string(item.MovementCode),
		CutOffNumber:         string(item.CutOffNumber),
		CutOffDate:           item.CutOffDate,
		TransactionDate:      txnDate,
		AccountType:          string(item.AccountTypeID),
		AccountNumber:        string(item.AccountNumber),
		Amount:               item.TransactionValue.Round(2),
		AmountSign:           model.AmountSign(strings.ToUpper(item.TransactionType)),
		InstitutionCode:      item.InstitutionCode,
		ServiceCode:          string(item.ServiceCode),
		ExecutionStatus:      item.TransactionStatus,
		ReversalMovementCode: string(item.ReverseMovementCode),
		Side:                 model.SideInstitution,
	}, nil
}
