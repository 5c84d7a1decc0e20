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

const membersQuery = `
  query ($slug: String!, $limit: Int!, $offset: Int!) {
    account(slug: $slug) {
      members(role: BACKER, limit: $limit, offset: $offset) {
        totalCount
        nodes {
          account {
            name
            slug
            emails
          }
          totalDonations {
            value
            currency
          }
          createdAt
        }
      }
    }
  }
`

const transactionsQuery = `
  query ($slug: String!, $limit: Int!, $offset: Int!) {
    account(slug: $slug) {
      transactions(type: CREDIT, limit: $limit, offset: $offset) {
        totalCount
        nodes {
          fromAccount {
            name
            slug
            emails
          }
          amount {
            value
            currency
          }
          createdAt
        }
      }
    }
  }
`

const accountQuery = `
  query ($slug: String!) {
    account(slug: $slug) {
      slug
      name
    }
  }
`

// gjson paths of the connection objects in the responses above.
const (
	membersPath      = "data.account.members"
	transactionsPath = "data.account.transactions"
	accountPath      = "data.account"
)
