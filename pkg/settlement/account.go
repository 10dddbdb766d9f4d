package settlement

import (
	"context"
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

const (
	accountQueryPath     = "/cosmos.auth.v1beta1.Query/Account"
	baseAccountTypeURL   = "/cosmos.auth.v1beta1.BaseAccount"
	moduleAccountTypeURL = "/cosmos.auth.v1beta1.ModuleAccount"

	// sdk ErrKeyNotFound, returned for gRPC NotFound over ABCI query.
	accountNotFoundCode = 22
)

// ErrAccountNotFound is returned when the submitter account has never been funded.
var ErrAccountNotFound = errors.New("account not found")

// Account is the signer state needed to build a transaction.
type Account struct {
	Number   uint64
	Sequence uint64
}

func queryAccount(ctx context.Context, client Client, address string) (Account, error) {
	var req []byte
	req = appendString(req, 1, address)

	res, err := client.ABCIQuery(ctx, accountQueryPath, tmbytes.HexBytes(req))
	if err != nil {
		return Account{}, fmt.Errorf("failed to query account %s: %w", address, err)
	}
	if res.Response.Code == accountNotFoundCode || (res.Response.Code == 0 && len(res.Response.Value) == 0) {
		return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, address)
	}
	if res.Response.Code != 0 {
		return Account{}, fmt.Errorf("failed to query account %s: code %d: %s", address, res.Response.Code, res.Response.Log)
	}
	return decodeAccountResponse(res.Response.Value)
}

// decodeAccountResponse parses QueryAccountResponse{account: Any}.
func decodeAccountResponse(b []byte) (Account, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return Account{}, fmt.Errorf("failed to decode account response: %w", err)
	}
	for _, f := range fields {
		if f.Num == 1 && f.Bytes != nil {
			return decodeAccountAny(f.Bytes)
		}
	}
	return Account{}, ErrAccountNotFound
}

func decodeAccountAny(b []byte) (Account, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return Account{}, fmt.Errorf("failed to decode account: %w", err)
	}
	var (
		typeURL string
		value   []byte
	)
	for _, f := range fields {
		switch f.Num {
		case 1:
			typeURL = string(f.Bytes)
		case 2:
			value = f.Bytes
		}
	}

	switch typeURL {
	case baseAccountTypeURL:
		return decodeBaseAccount(value)
	case moduleAccountTypeURL:
		// ModuleAccount embeds its BaseAccount as field 1.
		fields, err := decodeFields(value)
		if err != nil {
			return Account{}, fmt.Errorf("failed to decode module account: %w", err)
		}
		for _, f := range fields {
			if f.Num == 1 {
				return decodeBaseAccount(f.Bytes)
			}
		}
		return Account{}, fmt.Errorf("module account without base account")
	default:
		return Account{}, fmt.Errorf("unsupported account type %q", typeURL)
	}
}

// decodeBaseAccount parses BaseAccount{address, pub_key, account_number, sequence}.
func decodeBaseAccount(b []byte) (Account, error) {
	fields, err := decodeFields(b)
	if err != nil {
		return Account{}, fmt.Errorf("failed to decode base account: %w", err)
	}
	var acc Account
	for _, f := range fields {
		switch f.Num {
		case 3:
			acc.Number = f.Varint
		case 4:
			acc.Sequence = f.Varint
		}
	}
	return acc, nil
}
