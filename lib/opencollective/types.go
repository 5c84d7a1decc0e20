/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package opencollective

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value as reported by the ledger.
type Amount struct {
	Value    decimal.Decimal `json:"value"`
	Currency string          `json:"currency"`
}

func (a Amount) String() string {
	return strings.TrimSpace(a.Value.StringFixed(2) + " " + a.Currency)
}

// Account is a ledger account. Emails are only visible with the "email"
// scope and only for accounts that shared them with the collective.
type Account struct {
	Name   string   `json:"name"`
	Slug   string   `json:"slug"`
	Emails []string `json:"emails"`
}

// HasEmail reports whether one of the account emails matches, ignoring case.
func (a *Account) HasEmail(email string) bool {
	if a == nil {
		return false
	}
	for _, e := range a.Emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// Member is a node of the members-by-role query.
type Member struct {
	Account        *Account  `json:"account"`
	TotalDonations *Amount   `json:"totalDonations"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Transaction is a node of the credit-transactions query.
type Transaction struct {
	FromAccount *Account  `json:"fromAccount"`
	Amount      *Amount   `json:"amount"`
	CreatedAt   time.Time `json:"createdAt"`
}

type page[T any] struct {
	TotalCount int `json:"totalCount"`
	Nodes      []T `json:"nodes"`
}

// Strategy names a lookup data source.
type Strategy int

const (
	// StrategyMembers scans backer-role members.
	StrategyMembers Strategy = iota + 1
	// StrategyTransactions scans credit transactions.
	StrategyTransactions
)

func (s Strategy) String() string {
	switch s {
	case StrategyMembers:
		return "members"
	case StrategyTransactions:
		return "transactions"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// DonorRecord is the result of a donor lookup.
type DonorRecord struct {
	Found          bool
	Name           string
	TotalDonations *Amount
	// Source is the strategy that matched. Zero when not found.
	Source Strategy
}

// Outcome classifies how a single lookup strategy ended.
type Outcome int

const (
	// OutcomeMatched means the email was found.
	OutcomeMatched Outcome = iota
	// OutcomeExhausted means every page was scanned without a match.
	OutcomeExhausted
	// OutcomeRetryable means the strategy failed and another one may be tried.
	OutcomeRetryable
	// OutcomeTerminal means the strategy failed and nothing is left to try.
	OutcomeTerminal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// StrategyResult is what a single strategy run produced.
type StrategyResult struct {
	Strategy Strategy
	Outcome  Outcome
	Record   DonorRecord
	Err      error
}

// AccessResponse is the token endpoint response.
type AccessResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

type graphqlRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}
