package market

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Failure reasons carried by Outcome.
var (
	// ErrUnavailable covers transport errors, timeouts, non-2xx statuses and
	// malformed bodies. Callers treat the result as unknown and retry later.
	ErrUnavailable = errors.New("marketplace unavailable")

	// ErrRejected means the marketplace answered with success=false or
	// without the data the call needs.
	ErrRejected = errors.New("marketplace rejected request")
)

// Outcome is the result of a marketplace call. Exactly one of Value and
// Err is meaningful.
type Outcome[T any] struct {
	Value T
	Err   error
}

func ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

func fail[T any](err error) Outcome[T] {
	return Outcome[T]{Err: err}
}

// OK reports whether the call succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Stage is the marketplace's status code of a buy-for request.
type Stage int

// Known stages.
const (
	StageUnknown   Stage = 0
	StageCompleted Stage = 2
	StagePending   Stage = 4
	StageFailed    Stage = 5
)

// UnmarshalJSON accepts the stage as a number or a numeric string.
func (s *Stage) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*s = StageUnknown
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return err
	}
	*s = Stage(n)
	return nil
}

// BuyInfo is the status of one buy-for request.
type BuyInfo struct {
	ID     flexString `json:"id"`
	Stage  Stage      `json:"stage"`
	Status string     `json:"status"`
}

// Failed reports whether the marketplace flagged the transfer as failed.
func (b BuyInfo) Failed() bool {
	return b.Status == "failed"
}

// BuyResult is an accepted buy-for request.
type BuyResult struct {
	OfferID string
}

// flexString decodes ids that arrive as numbers or strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
