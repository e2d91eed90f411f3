package stellar

import (
	"context"
	"net/http"

	"github.com/stellar/go-stellar-sdk/clients/horizonclient"
	"github.com/stellar/go-stellar-sdk/protocols/horizon"
)

// realHorizonClient adapts the SDK's horizonclient to our HorizonClient interface.
// The SDK calls are not context-aware, so cancellation is only honored before a
// request is sent.
type realHorizonClient struct {
	client *horizonclient.Client
}

// NewHorizonClient creates a HorizonClient for the Horizon instance at horizonURL.
// httpClient may be nil, in which case http.DefaultClient is used; no request
// timeout is imposed beyond what the caller's client defines.
func NewHorizonClient(horizonURL string, httpClient *http.Client) HorizonClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &realHorizonClient{
		client: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       httpClient,
		},
	}
}

func (r *realHorizonClient) AccountDetail(ctx context.Context, accountID string) (horizon.Account, error) {
	if err := ctx.Err(); err != nil {
		return horizon.Account{}, err
	}
	return r.client.AccountDetail(horizonclient.AccountRequest{AccountID: accountID})
}

func (r *realHorizonClient) SubmitTransactionXDR(ctx context.Context, envelopeXDR string) (horizon.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return horizon.Transaction{}, err
	}
	return r.client.SubmitTransactionXDR(envelopeXDR)
}
