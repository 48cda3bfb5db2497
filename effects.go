package main

import "fmt"

// expireEffects drops ledger entries whose duration has run out and rebuilds
// the state they changed. Runs at the start of every night.
func (s *GameSession) expireEffects() error {
	for _, p := range s.seats() {
		var kept, expired []LedgerEntry
		for _, e := range p.Ledger {
			ab, ok := s.catalog.Ability(e.Ability)
			if !ok {
				return invariant("ledger of %s holds unknown ability %q", p.Name, e.Ability)
			}
			if ab.Duration != DurationIndefinite && e.DuringPhase+ab.Duration <= s.daysPassed {
				expired = append(expired, e)
			} else {
				kept = append(kept, e)
			}
		}
		p.Ledger = kept

		for _, e := range expired {
			ab, _ := s.catalog.Ability(e.Ability)
			if ab.Type == TypeSuicide && p.Alive {
				DebugLog("expireEffects", "%s dies from %s", p.Name, ab.Name)
				s.deaths.Add(p.Name, p.Role, Kill{Killer: p.Name, KillerRole: p.Role, Flavor: FlavorVigilanteGuilt})
				p.addFeedback("You committed suicide over the guilt of killing a town member.")
				p.kill()
			}
		}

		if err := s.restoreFromLedger(p); err != nil {
			return err
		}
	}
	return nil
}

// restoreFromLedger recomputes everything an effect can change from the role
// base plus the entries still on the ledger
func (s *GameSession) restoreFromLedger(p *PlayerState) error {
	role, err := s.roleOf(p)
	if err != nil {
		return err
	}

	p.Defense = role.Defense
	p.IsRoleblocked = false
	p.IsMuted = false
	p.CanVote = true
	p.Perceived.Role = p.Role

	for _, e := range p.Ledger {
		ab, ok := s.catalog.Ability(e.Ability)
		if !ok {
			return invariant("ledger of %s holds unknown ability %q", p.Name, e.Ability)
		}
		for _, kind := range ab.Effects {
			switch kind {
			case EffectHeal, EffectSelfHeal:
				p.raiseDefense(healDefense)
			case EffectSmith, EffectSelfSmith:
				p.raiseDefense(smithDefense)
			case EffectRoleblock:
				p.IsRoleblocked = !role.Immune(ImmuneRoleblock)
			case EffectKidnap:
				p.raiseDefense(kidnapDefense)
				p.IsRoleblocked = !role.Immune(ImmuneRoleblock)
				p.IsMuted = true
				p.CanVote = false
			case EffectFrame, EffectSelfFrame, EffectFrameTarget:
				p.Perceived.Role = perceivedFramedAs
			}
		}
	}
	return nil
}

// ledgerHasEffect reports whether any entry on p came from an ability with the effect
func (s *GameSession) ledgerHasEffect(p *PlayerState, kind EffectKind) bool {
	for _, e := range p.Ledger {
		if ab, ok := s.catalog.Ability(e.Ability); ok && hasEffect(ab, kind) {
			return true
		}
	}
	return false
}

// promoteMafia makes a random Mafia member the new Mafioso when the Mafia
// has lost both its killers
func (s *GameSession) promoteMafia() (string, error) {
	if s.livingWithRole(RoleMafioso) != nil || s.livingWithRole(RoleGodfather) != nil {
		return "", nil
	}

	var members []*PlayerState
	for _, p := range s.living() {
		role, err := s.roleOf(p)
		if err != nil {
			return "", err
		}
		if role.Faction == FactionMafia {
			members = append(members, p)
		}
	}
	if len(members) == 0 {
		return "", nil
	}

	mafioso, ok := s.catalog.Role(RoleMafioso)
	if !ok {
		return "", invariant("catalog has no %s", RoleMafioso)
	}
	chosen := members[s.rng.IntN(len(members))]
	chosen.setRole(mafioso)
	chosen.addFeedback(fmt.Sprintf("You were promoted to **%s**.", RoleMafioso))
	DebugLog("promoteMafia", "%s promoted to %s", chosen.Name, RoleMafioso)
	return chosen.Name, nil
}
