package stellar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"stellar-remit/config"
	"stellar-remit/internal/core/ports"
	"stellar-remit/pkg/apperror"

	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
)

// MemoText operations reject memos longer than 28 bytes.
const maxMemoLen = 28

// horizonAPI is the subset of horizonclient.Client the gateway consumes.
type horizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	SubmitTransaction(tx *txnbuild.Transaction) (horizon.Transaction, error)
	TransactionDetail(txHash string) (horizon.Transaction, error)
}

// Gateway implements ports.LedgerGateway against a Stellar Horizon server.
// Horizon is treated as an untrusted, possibly-slow network peer: the
// underlying HTTP client carries the configured call timeout, and callers
// additionally bound each call with a context deadline.
type Gateway struct {
	client       horizonAPI
	httpClient   *http.Client
	friendbotURL string
	passphrase   string
}

// NewGateway creates a Horizon-backed ledger gateway.
func NewGateway(cfg config.LedgerConfig) *Gateway {
	httpClient := &http.Client{Timeout: cfg.CallTimeout}
	return &Gateway{
		client: &horizonclient.Client{
			HorizonURL: cfg.HorizonURL,
			HTTP:       httpClient,
		},
		httpClient:   &http.Client{Timeout: cfg.FundingTimeout},
		friendbotURL: cfg.FriendbotURL,
		passphrase:   cfg.NetworkPassphrase,
	}
}

// LoadAccount fetches account state for an address.
func (g *Gateway) LoadAccount(ctx context.Context, address string) (*ports.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Classify(err)
	}

	account, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, apperror.ErrAccountNotFound(address)
		}
		return nil, apperror.Classify(fmt.Errorf("load account: %w", err))
	}

	native, err := account.GetNativeBalance()
	if err != nil {
		return nil, fmt.Errorf("native balance for %s: %w", address, err)
	}

	return &ports.AccountInfo{
		Address:       account.AccountID,
		Sequence:      account.Sequence,
		NativeBalance: native,
	}, nil
}

// NativeBalance returns the account's native-asset balance. Fails when the
// account is unfunded or inactive; callers absorb that as a zero balance.
func (g *Gateway) NativeBalance(ctx context.Context, address string) (string, error) {
	info, err := g.LoadAccount(ctx, address)
	if err != nil {
		return "", err
	}
	return info.NativeBalance, nil
}

// SubmitPayment builds, signs and submits a single native-asset payment.
func (g *Gateway) SubmitPayment(ctx context.Context, sub ports.PaymentSubmission) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperror.Classify(err)
	}

	sourceKP, err := keypair.ParseFull(sub.SourceSecret)
	if err != nil {
		return "", apperror.ErrSubmission(fmt.Errorf("parse source secret: %w", err))
	}

	sourceAccount, err := g.client.AccountDetail(horizonclient.AccountRequest{AccountID: sourceKP.Address()})
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return "", apperror.ErrSubmission(fmt.Errorf("source account not found"))
		}
		return "", apperror.Classify(fmt.Errorf("load source account: %w", err))
	}

	params := txnbuild.TransactionParams{
		SourceAccount:        &sourceAccount,
		IncrementSequenceNum: true,
		BaseFee:              txnbuild.MinBaseFee,
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(30),
		},
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: sub.Destination,
				Amount:      sub.Amount,
				Asset:       txnbuild.NativeAsset{},
			},
		},
	}
	if sub.Memo != "" {
		memo := sub.Memo
		if len(memo) > maxMemoLen {
			memo = memo[:maxMemoLen]
		}
		params.Memo = txnbuild.MemoText(memo)
	}

	tx, err := txnbuild.NewTransaction(params)
	if err != nil {
		return "", apperror.ErrSubmission(fmt.Errorf("build transaction: %w", err))
	}

	tx, err = tx.Sign(g.passphrase, sourceKP)
	if err != nil {
		return "", apperror.ErrSubmission(fmt.Errorf("sign transaction: %w", err))
	}

	resp, err := g.client.SubmitTransaction(tx)
	if err != nil {
		if hErr, ok := err.(*horizonclient.Error); ok {
			return "", apperror.ErrSubmission(fmt.Errorf("horizon rejected transaction: %s", hErr.Problem.Title))
		}
		classified := apperror.Classify(err)
		if apperror.IsTransient(classified) {
			return "", classified
		}
		return "", apperror.ErrSubmission(err)
	}

	return resp.Hash, nil
}

// RequestTestFunding asks the friendbot faucet to fund a testnet account.
// Best-effort: a false return or an error never aborts provisioning.
func (g *Gateway) RequestTestFunding(ctx context.Context, address string) (bool, error) {
	if g.friendbotURL == "" {
		return false, nil
	}

	reqURL := fmt.Sprintf("%s?addr=%s", g.friendbotURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return false, fmt.Errorf("build friendbot request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, apperror.Classify(fmt.Errorf("friendbot request: %w", err))
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// GetTransaction looks up a submitted transaction for confirmation.
func (g *Gateway) GetTransaction(ctx context.Context, txID string) (*ports.LedgerTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Classify(err)
	}

	tx, err := g.client.TransactionDetail(txID)
	if err != nil {
		if horizonclient.IsNotFoundError(err) {
			return nil, apperror.ErrNotFound("ledger transaction")
		}
		return nil, apperror.Classify(fmt.Errorf("transaction detail: %w", err))
	}

	return &ports.LedgerTransaction{
		ID:         tx.Hash,
		Successful: tx.Successful,
		Ledger:     tx.Ledger,
	}, nil
}
