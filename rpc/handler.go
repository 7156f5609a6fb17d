package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/indexer"
	"github.com/tolelom/tolbook/ledger"
	"github.com/tolelom/tolbook/sale"
	"github.com/tolelom/tolbook/vm"
)

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	chainID string // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())
	case "getBlock":
		return h.getBlock(req)
	case "getBalance":
		return h.getBalance(req)
	case "getAsset":
		return h.getAsset(req)
	case "getAssetsByOwner":
		return h.getAssetsByOwner(req)
	case "getToolBalance":
		return h.getToolBalance(req)
	case "sendTx":
		return h.sendTx(req)
	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())
	case "getTxTypes":
		return okResponse(req.ID, vm.RegisteredTypes())

	case "getSaleConfig":
		return h.getSaleConfig(req)
	case "getCurrentRound":
		return h.getCurrentRound(req)
	case "getRound":
		return h.getRound(req)
	case "getContainer":
		return h.getContainer(req)
	case "getAllowance":
		return h.getAllowance(req)
	case "isEligible":
		return h.isEligible(req)
	case "topMinters":
		return h.topMinters(req)
	case "getMinterTotal":
		return h.getMinterTotal(req)
	case "getBook":
		return h.getBook(req)
	case "getBooksByHolder":
		return h.getBooksByHolder(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// sale returns a read-only view of the sale. Its ledgers report to no sink
// and its clock is the wall clock.
func (h *Handler) sale() *sale.Engine {
	ls := ledger.New(h.state, nil, "", 0)
	return sale.NewEngine(h.state, sale.Ledgers{
		Native:    ls.Native,
		Secondary: ls.Secondary,
		Assets:    ls.Assets,
		Tools:     ls.Tools,
	})
}

func parseParams(req Request, v any) error {
	if len(req.Params) == 0 {
		return errors.New("params are required")
	}
	return json.Unmarshal(req.Params, v)
}

func invalidParams(req Request, err error) Response {
	return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
}

// failure maps a domain error to a JSON-RPC error object.
func failure(req Request, err error) Response {
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, sale.ErrUnknownBook), errors.Is(err, sale.ErrNotInitialized):
		return errResponse(req.ID, CodeNotFound, err.Error())
	case errors.Is(err, sale.ErrInvalidAddress), errors.Is(err, sale.ErrBadRound), errors.Is(err, sale.ErrBadContainer):
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	default:
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
}

func address(raw, field string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.NormalizeAddress(raw)
	if err != nil {
		return "", fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

// ---- chain ----

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return invalidParams(req, err)
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return failure(req, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	addr, err := address(params.Address, "address")
	if err != nil {
		return invalidParams(req, err)
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return failure(req, err)
	}
	secondary, err := h.state.GetSecondaryBalance(addr)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]any{
		"address":   addr,
		"balance":   acc.Balance.Dec(),
		"secondary": secondary.Dec(),
		"nonce":     acc.Nonce,
	})
}

func (h *Handler) getAsset(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	asset, err := h.state.GetAsset(params.ID)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, asset)
}

func (h *Handler) getAssetsByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	owner, err := address(params.Owner, "owner")
	if err != nil {
		return invalidParams(req, err)
	}
	ids, err := h.indexer.GetAssetsByOwner(owner)
	if err != nil {
		return failure(req, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return okResponse(req.ID, ids)
}

func (h *Handler) getToolBalance(req Request) Response {
	var params struct {
		Owner   string `json:"owner"`
		TokenID uint64 `json:"token_id"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	owner, err := address(params.Owner, "owner")
	if err != nil {
		return invalidParams(req, err)
	}
	bal, err := h.state.GetToolBalance(owner, params.TokenID)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]any{"owner": owner, "token_id": params.TokenID, "balance": bal})
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := parseParams(req, &tx); err != nil {
		return invalidParams(req, err)
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeInvalidParams,
			fmt.Sprintf("chain ID mismatch: got %q want %q", tx.ChainID, h.chainID))
	}
	if !vm.Registered(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown tx type %q", tx.Type))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := h.mempool.Add(&tx); err != nil {
		return errResponse(req.ID, CodeInvalidRequest, err.Error())
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}

// ---- sale ----

func (h *Handler) getSaleConfig(req Request) Response {
	cfg, err := h.sale().Config()
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, cfg)
}

func (h *Handler) getCurrentRound(req Request) Response {
	r, err := h.sale().CurrentRound()
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getRound(req Request) Response {
	var params struct {
		Round uint8 `json:"round"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	r, err := h.sale().Round(params.Round)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getContainer(req Request) Response {
	var ref core.ContainerRef
	if err := parseParams(req, &ref); err != nil {
		return invalidParams(req, err)
	}
	if err := ref.Validate(); err != nil {
		return invalidParams(req, err)
	}
	c, err := h.sale().Container(ref)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]any{"container": c, "remaining": c.Remaining()})
}

func (h *Handler) getAllowance(req Request) Response {
	var params struct {
		Round   uint8  `json:"round"`
		Address string `json:"address"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	a, err := h.sale().Allowance(params.Round, params.Address)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, a)
}

func (h *Handler) isEligible(req Request) Response {
	var params struct {
		Address string        `json:"address"`
		Proof   []common.Hash `json:"proof"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	ok, err := h.sale().IsEligible(params.Address, params.Proof)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]bool{"eligible": ok})
}

func (h *Handler) topMinters(req Request) Response {
	params := struct {
		Limit int `json:"limit"`
	}{Limit: core.MaxLeaderboard}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return invalidParams(req, err)
		}
	}
	rows, err := h.sale().TopMinters(params.Limit)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, rows)
}

func (h *Handler) getMinterTotal(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	total, err := h.sale().MinterTotal(params.Address)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "total": total})
}

func (h *Handler) getBook(req Request) Response {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	opened, err := h.state.IsBookOpened(params.ID)
	if err != nil {
		return failure(req, err)
	}
	if opened {
		return okResponse(req.ID, map[string]any{"id": params.ID, "opened": true})
	}
	b, err := h.sale().Book(params.ID)
	if err != nil {
		return failure(req, err)
	}
	return okResponse(req.ID, map[string]any{"id": params.ID, "opened": false, "book": b})
}

func (h *Handler) getBooksByHolder(req Request) Response {
	var params struct {
		Holder string `json:"holder"`
	}
	if err := parseParams(req, &params); err != nil {
		return invalidParams(req, err)
	}
	holder, err := address(params.Holder, "holder")
	if err != nil {
		return invalidParams(req, err)
	}
	ids, err := h.indexer.GetBooksByHolder(holder)
	if err != nil {
		return failure(req, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	return okResponse(req.ID, ids)
}
