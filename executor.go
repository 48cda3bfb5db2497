package main

import (
	"fmt"
	"sort"
)

// nightResolver drains one night's queue against the session's players
type nightResolver struct {
	s *GameSession
	q *ActionQueue
}

// resolveNight builds the queue from every queued action and runs it to
// completion. Only an InvariantViolation stops it early.
func (s *GameSession) resolveNight() error {
	q := newActionQueue()

	var queued []*PlayerState
	for _, p := range s.seats() {
		if p.Queued != nil && p.Queued.Ability != AbilityNothing && p.canAct() {
			queued = append(queued, p)
		}
	}
	sort.SliceStable(queued, func(i, j int) bool {
		return queued[i].Queued.seq < queued[j].Queued.seq
	})

	for _, p := range queued {
		ab, ok := s.catalog.Ability(p.Queued.Ability)
		if !ok {
			return invariant("no catalog entry for queued ability %q", p.Queued.Ability)
		}
		err := q.Push(Action{Actor: p.Name, Ability: ab.Name, Args: p.Queued.Args}, ab.Priority())
		if err != nil {
			return err
		}
	}

	r := &nightResolver{s: s, q: q}
	for {
		a, ok := q.Pop()
		if !ok {
			break
		}
		if err := r.dispatch(a); err != nil {
			return err
		}
	}
	return nil
}

func (r *nightResolver) dispatch(a Action) error {
	actor, ok := r.s.players[a.Actor]
	if !ok {
		return invariant("queued action for unknown player %q", a.Actor)
	}
	ab, ok := r.s.catalog.Ability(a.Ability)
	if !ok {
		return invariant("no catalog entry for ability %q", a.Ability)
	}

	if actor.IsRoleblocked {
		DebugLog("resolveNight", "%s is roleblocked, skipping %s", actor.Name, ab.Name)
		return nil
	}
	if !actor.canAct() {
		DebugLog("resolveNight", "%s can no longer act, skipping %s", actor.Name, ab.Name)
		return nil
	}

	DebugLog("resolveNight", "%s uses %s on %v (priority %d)", actor.Name, ab.Name, a.Args, ab.Priority())
	actor.UsedCounts[ab.Name]++

	for _, kind := range ab.Effects {
		if err := r.apply(kind, actor, ab, a.Args); err != nil {
			return err
		}
	}
	return nil
}

// apply runs one effect. Every EffectKind has a case.
func (r *nightResolver) apply(kind EffectKind, actor *PlayerState, ab *Ability, args []string) error {
	switch kind {
	case EffectRoleblock:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.roleblock(actor, ab, t) })
	case EffectCautious:
		r.cautious(actor, ab)
		return nil
	case EffectHeal:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.protect(actor, ab, t, healDefense) })
	case EffectSelfHeal:
		return r.protect(actor, ab, actor, healDefense)
	case EffectSmith:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.protect(actor, ab, t, smithDefense) })
	case EffectSelfSmith:
		return r.protect(actor, ab, actor, smithDefense)
	case EffectOrder:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.order(actor, t) })
	case EffectAttack:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.attack(actor, ab.Name, t) })
	case EffectFrame:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.frame(actor, ab, t) })
	case EffectSelfFrame:
		return r.frame(actor, ab, actor)
	case EffectFrameTarget:
		return r.frameTarget(actor, ab)
	case EffectEvaluate:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.evaluate(actor, ab, t) })
	case EffectTrack:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.track(actor, ab, t) })
	case EffectLookout:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.lookout(actor, ab, t) })
	case EffectInvestigate:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.investigate(actor, ab, t) })
	case EffectControl:
		return withTarget(r, args, 0, func(t *PlayerState) error {
			return withTarget(r, args, 1, func(into *PlayerState) error { return r.control(actor, ab, t, into) })
		})
	case EffectObserve:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.observe(actor, ab, t) })
	case EffectReplace:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.replace(actor, t) })
	case EffectKidnap:
		return withTarget(r, args, 0, func(t *PlayerState) error { return r.kidnap(actor, ab, t) })
	case EffectSilenceCurse:
		r.silenceCurse(actor)
		return nil
	}
	return invariant("no handler for effect %v of %q", kind, ab.Name)
}

func withTarget(r *nightResolver, args []string, i int, fn func(*PlayerState) error) error {
	if i >= len(args) {
		return invariant("missing argument %d", i)
	}
	t, ok := r.s.players[args[i]]
	if !ok {
		return invariant("argument names unknown player %q", args[i])
	}
	return fn(t)
}

// requeue inserts a forced action and keeps going
func (r *nightResolver) requeue(a Action) bool {
	ab, ok := r.s.catalog.Ability(a.Ability)
	if !ok {
		return false
	}
	ok = r.q.Requeue(a, ab.Priority())
	if ok {
		DebugLog("resolveNight", "requeued %s for %s on %v", a.Ability, a.Actor, a.Args)
	}
	return ok
}

// attack compares levels and records the outcome. ledgerAbility is empty for
// retaliations, which leave no ledger entry.
func (r *nightResolver) attack(attacker *PlayerState, ledgerAbility string, victim *PlayerState) error {
	if ledgerAbility != "" {
		victim.addLedger(ledgerAbility, attacker.Name, r.s.daysPassed)
	}

	if victim.Defense < attacker.Attack {
		r.s.deaths.Add(victim.Name, victim.Role, Kill{Killer: attacker.Name, KillerRole: attacker.Role})
		victim.addFeedback("You were attacked by someone and they successfully killed you.")
		attacker.addFeedback(fmt.Sprintf("You attacked and killed **%s**.", victim.Name))

		victimRole, err := r.s.roleOf(victim)
		if err != nil {
			return err
		}
		if attacker.Role == RoleVigilante && victimRole.Faction == FactionTown {
			attacker.addLedger(AbilitySuicide, attacker.Name, r.s.daysPassed)
			attacker.addFeedback("You killed a member of the town and will not survive the guilt.")
		}
		return nil
	}

	for _, e := range victim.Ledger {
		ab, ok := r.s.catalog.Ability(e.Ability)
		if !ok {
			return invariant("ledger of %s holds unknown ability %q", victim.Name, e.Ability)
		}
		if ab.Type != TypeProtection || e.Actor == victim.Name {
			continue
		}
		protector, ok := r.s.players[e.Actor]
		if !ok {
			continue
		}
		protector.addFeedback("The player you protected was attacked!")
		if hasEffect(ab, EffectSmith) && !protector.HasWon {
			protector.addFeedback("You have accomplished your goal and saved someone from death.")
			if err := r.s.makeWinner(protector); err != nil {
				return err
			}
		}
	}

	victim.addFeedback("You were attacked by someone, but your defense was strong enough to survive their attack.")
	attacker.addFeedback(fmt.Sprintf("You tried to attack **%s**, but their defense was too strong.", victim.Name))
	return nil
}

func hasEffect(ab *Ability, kind EffectKind) bool {
	for _, e := range ab.Effects {
		if e == kind {
			return true
		}
	}
	return false
}

// seeThrough drops deception from p so the next look shows the truth
func (s *GameSession) seeThrough(p *PlayerState) {
	kept := p.Ledger[:0]
	for _, e := range p.Ledger {
		if ab, ok := s.catalog.Ability(e.Ability); ok && ab.Type == TypeManipulation {
			continue
		}
		kept = append(kept, e)
	}
	p.Ledger = kept
	p.Perceived.Role = p.Role
}
