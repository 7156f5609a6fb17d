package ledger

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolbook/core"
	"github.com/tolelom/tolbook/crypto"
	"github.com/tolelom/tolbook/events"
)

// Assets is the unique-asset ledger.
type Assets struct{ base }

// RegisterTemplate stores a new asset template created by creator.
func (a *Assets) RegisterTemplate(creator string, t *core.AssetTemplate) error {
	if t.ID == "" {
		return errors.New("template id required")
	}
	_, err := a.state.GetTemplate(t.ID)
	if err == nil {
		return fmt.Errorf("template %q already exists", t.ID)
	}
	if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("check template %q: %w", t.ID, err)
	}
	t.Creator = creator
	if err := a.state.SetTemplate(t); err != nil {
		return err
	}
	a.emit(events.EventTemplateReg, map[string]any{"template_id": t.ID, "name": t.Name})
	return nil
}

// Mint creates an unrevealed asset from templateID owned by owner. The id is
// derived from the transaction id so replays cannot collide.
func (a *Assets) Mint(templateID, owner string, props map[string]any, mintedAt int64) (*core.Asset, error) {
	if templateID == "" {
		return nil, errors.New("template_id required")
	}
	if _, err := a.state.GetTemplate(templateID); err != nil {
		return nil, fmt.Errorf("template %q not found: %w", templateID, err)
	}
	id := crypto.Hash([]byte(a.txID + ":asset:" + templateID))
	if _, err := a.state.GetAsset(id); err == nil {
		return nil, fmt.Errorf("asset %q already exists", id)
	}
	asset := &core.Asset{
		ID:         id,
		TemplateID: templateID,
		Owner:      owner,
		Properties: props,
		MintedAt:   mintedAt,
	}
	if err := a.state.SetAsset(asset); err != nil {
		return nil, err
	}
	a.emit(events.EventAssetMinted, map[string]any{"asset_id": id, "template_id": templateID, "owner": owner})
	return asset, nil
}

// OwnerOf returns the current owner of assetID.
func (a *Assets) OwnerOf(assetID string) (string, error) {
	asset, err := a.state.GetAsset(assetID)
	if err != nil {
		return "", fmt.Errorf("asset %q: %w", assetID, err)
	}
	return asset.Owner, nil
}

// Transfer moves assetID from its owner to a new owner.
func (a *Assets) Transfer(from, to, assetID string) error {
	if to == "" {
		return ErrMissingRecipient
	}
	asset, err := a.state.GetAsset(assetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", assetID, err)
	}
	if asset.Owner != from {
		return fmt.Errorf("%w: %s", ErrNotOwner, assetID)
	}
	asset.Owner = to
	if err := a.state.SetAsset(asset); err != nil {
		return err
	}
	a.emit(events.EventAssetTransfer, map[string]any{"asset_id": assetID, "from": from, "to": to})
	return nil
}

// Reveal marks assetID revealed. Revealing twice is a no-op.
func (a *Assets) Reveal(assetID string) error {
	asset, err := a.state.GetAsset(assetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", assetID, err)
	}
	if asset.Revealed {
		return nil
	}
	asset.Revealed = true
	if err := a.state.SetAsset(asset); err != nil {
		return err
	}
	a.emit(events.EventAssetRevealed, map[string]any{"asset_id": assetID, "owner": asset.Owner})
	return nil
}

// Burn destroys assetID. Only its owner may burn it.
func (a *Assets) Burn(owner, assetID string) error {
	asset, err := a.state.GetAsset(assetID)
	if err != nil {
		return fmt.Errorf("asset %q: %w", assetID, err)
	}
	if asset.Owner != owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, assetID)
	}
	if err := a.state.DeleteAsset(assetID); err != nil {
		return err
	}
	a.emit(events.EventAssetBurned, map[string]any{"asset_id": assetID, "owner": owner})
	return nil
}
