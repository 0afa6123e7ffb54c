package game

import (
	"context"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wizardpipe/wizard/internal/common/apperrors"
	"github.com/wizardpipe/wizard/internal/wizard/db/models"
	"github.com/wizardpipe/wizard/internal/wizard/session"
)

// Artefact is a purchasable game item. Offensive artefacts cost the
// target life; Keeped ones survive the owner's death.
type Artefact struct {
	Name   string
	Price  int
	Damage int  // life taken from the target, 0 for passive items
	Keeped bool // survives death
}

// Catalog is the fixed artefact shop.
var Catalog = map[string]Artefact{
	"water_balloon": {Name: "water_balloon", Price: 10, Damage: 5},
	"stink_bomb":    {Name: "stink_bomb", Price: 25, Damage: 12},
	"anvil":         {Name: "anvil", Price: 60, Damage: 30},
	"lucky_clover":  {Name: "lucky_clover", Price: 40, Keeped: true},
	"golden_mug":    {Name: "golden_mug", Price: 100, Keeped: true},
}

// BuyArtefact purchases an item into the user's inventory. The inventory
// is a JSON map of artefact name to owned count.
func BuyArtefact(ctx context.Context, sess *session.Session, name string) apperrors.Error {
	art, ok := Catalog[name]
	if !ok {
		return ErrNoSuch.Msg(name)
	}
	if sess.User.Coins < art.Price {
		return ErrBroke.Msg(name)
	}
	count := gjson.Get(sess.User.Artefacts, name).Int()
	inventory, serr := sjson.Set(sess.User.Artefacts, name, count+1)
	if serr != nil {
		return ErrGame.Msg("failed to update inventory").Err(serr)
	}
	if err := sess.Repo.UpdateUser(ctx, sess.User.ID, map[string]any{
		"coins":     sess.User.Coins - art.Price,
		"artefacts": inventory,
	}); err != nil {
		return err
	}
	sess.User.Coins -= art.Price
	sess.User.Artefacts = inventory
	return nil
}

// AttackUser spends one offensive artefact on another user, taking life
// from them and logging the attack.
func AttackUser(ctx context.Context, sess *session.Session, targetName, artefact string) apperrors.Error {
	art, ok := Catalog[artefact]
	if !ok || art.Damage == 0 {
		return ErrNoSuch.Msg(artefact)
	}
	count := gjson.Get(sess.User.Artefacts, artefact).Int()
	if count <= 0 {
		return ErrInventory.Msg(artefact)
	}
	target, err := sess.Repo.GetUser(ctx, targetName)
	if err != nil {
		return err
	}

	var inventory string
	var serr error
	if count == 1 {
		inventory, serr = sjson.Delete(sess.User.Artefacts, artefact)
	} else {
		inventory, serr = sjson.Set(sess.User.Artefacts, artefact, count-1)
	}
	if serr != nil {
		return ErrGame.Msg("failed to update inventory").Err(serr)
	}
	if err := sess.Repo.UpdateUser(ctx, sess.User.ID, map[string]any{"artefacts": inventory}); err != nil {
		return err
	}
	sess.User.Artefacts = inventory

	if err := takeLife(ctx, sess, target, art.Damage); err != nil {
		return err
	}
	_, aerr := sess.Repo.CreateAttackEvent(ctx, &models.AttackEvent{
		CreationUser:    sess.UserName(),
		DestinationUser: targetName,
		Artefact:        artefact,
		Timestamp:       attackTime(),
	})
	return aerr
}

// keptArtefacts filters an inventory down to items that survive death.
func keptArtefacts(u *models.User) string {
	kept := "{}"
	gjson.Parse(u.Artefacts).ForEach(func(key, value gjson.Result) bool {
		if art, ok := Catalog[key.String()]; ok && art.Keeped {
			kept, _ = sjson.Set(kept, key.String(), value.Int())
		}
		return true
	})
	return kept
}
