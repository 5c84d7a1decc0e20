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
	"context"
	"errors"
	"strings"

	"github.com/gravitational/oc-donor-bot/lib/logger"
	"github.com/gravitational/trace"
)

// UnavailableError is returned by VerifyDonor when neither strategy could
// complete. Its message is safe to show to end users; Causes carry the details.
type UnavailableError struct {
	Causes []error
}

func (e *UnavailableError) Error() string {
	return "unable to verify donation status, please try again later"
}

func (e *UnavailableError) Unwrap() []error {
	return e.Causes
}

// IsUnavailable reports whether err means that verification could not run.
func IsUnavailable(err error) bool {
	var unavailable *UnavailableError
	return errors.As(err, &unavailable)
}

// IsAuthError reports whether err, or any cause of an UnavailableError, is
// the ledger rejecting the access token.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if trace.IsAccessDenied(err) {
		return true
	}
	var unavailable *UnavailableError
	if errors.As(err, &unavailable) {
		for _, cause := range unavailable.Causes {
			if trace.IsAccessDenied(cause) {
				return true
			}
		}
	}
	return false
}

// VerifyDonor looks the email up among backers first and among credit
// transactions second. A failure of the first lookup is logged and the second
// one runs anyway; only a failure of the second lookup is returned, as an
// *UnavailableError. Not finding the email is not an error.
func (c *Client) VerifyDonor(ctx context.Context, email string) (DonorRecord, error) {
	log := logger.Get(ctx)

	email = strings.TrimSpace(email)
	if email == "" {
		return DonorRecord{}, trace.BadParameter("missing email")
	}

	primary := c.runStrategy(ctx, StrategyMembers, email, OutcomeRetryable)
	switch primary.Outcome {
	case OutcomeMatched:
		return primary.Record, nil
	case OutcomeRetryable:
		log.WithError(primary.Err).Warn("Members query failed, falling back to transactions")
	}

	fallback := c.runStrategy(ctx, StrategyTransactions, email, OutcomeTerminal)
	switch fallback.Outcome {
	case OutcomeMatched:
		return fallback.Record, nil
	case OutcomeTerminal:
		log.WithError(fallback.Err).Error("Transactions query also failed")
		causes := []error{fallback.Err}
		if primary.Err != nil {
			causes = []error{primary.Err, fallback.Err}
		}
		return DonorRecord{}, &UnavailableError{Causes: causes}
	}

	return DonorRecord{Found: false}, nil
}

// runStrategy runs one lookup and classifies its result. onFailure is the
// outcome reported when the lookup errors.
func (c *Client) runStrategy(ctx context.Context, strategy Strategy, email string, onFailure Outcome) StrategyResult {
	var (
		record DonorRecord
		found  bool
		err    error
	)
	switch strategy {
	case StrategyMembers:
		record, found, err = c.checkDonorByMembers(ctx, email)
	case StrategyTransactions:
		record, found, err = c.checkDonorByTransactions(ctx, email)
	default:
		err = trace.BadParameter("unknown strategy %v", strategy)
	}

	result := StrategyResult{Strategy: strategy, Record: record}
	switch {
	case err != nil:
		result.Outcome = onFailure
		result.Err = err
	case found:
		result.Outcome = OutcomeMatched
	default:
		result.Outcome = OutcomeExhausted
	}
	return result
}

func (c *Client) checkDonorByMembers(ctx context.Context, email string) (DonorRecord, bool, error) {
	return scan(ctx, c, membersQuery, membersPath, func(member Member) (DonorRecord, bool) {
		if !member.Account.HasEmail(email) {
			return DonorRecord{}, false
		}
		return DonorRecord{
			Found:          true,
			Name:           member.Account.Name,
			TotalDonations: member.TotalDonations,
			Source:         StrategyMembers,
		}, true
	})
}

func (c *Client) checkDonorByTransactions(ctx context.Context, email string) (DonorRecord, bool, error) {
	return scan(ctx, c, transactionsQuery, transactionsPath, func(tx Transaction) (DonorRecord, bool) {
		if tx.FromAccount == nil || !tx.FromAccount.HasEmail(email) {
			return DonorRecord{}, false
		}
		return DonorRecord{
			Found:          true,
			Name:           tx.FromAccount.Name,
			TotalDonations: tx.Amount,
			Source:         StrategyTransactions,
		}, true
	})
}
