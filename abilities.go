package main

import (
	"fmt"
	"strings"
)

// Defense floors granted by protective effects
const (
	smithDefense  = 1
	healDefense   = 2
	kidnapDefense = 4
)

func (r *nightResolver) roleblock(actor *PlayerState, ab *Ability, target *PlayerState) error {
	role, err := r.s.roleOf(target)
	if err != nil {
		return err
	}
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)

	if role.Immune(ImmuneRoleblock) {
		target.addFeedback("Someone attempted to roleblock you, but you were immune.")
	} else {
		r.block(target)
		target.addFeedback("You were roleblocked.")
	}

	if role.Name == RoleSerialKiller && !r.s.ledgerHasEffect(target, EffectCautious) {
		knife := Action{Actor: target.Name, Ability: AbilityKnife, Args: []string{actor.Name}}
		if r.requeue(knife) {
			target.Visiting = actor.Name
			target.addFeedback("You attacked the player who attempted to roleblock you instead of your original target.")
		}
	}

	actor.addFeedback(fmt.Sprintf("You attempted to roleblock **%s** last night.", target.Name))
	return nil
}

// block stops target from acting. A player who has not acted yet also no
// longer counts as visiting anyone.
func (r *nightResolver) block(target *PlayerState) {
	target.IsRoleblocked = true
	if !r.q.Resolved(target.Name) {
		target.Visiting = ""
	}
}

func (r *nightResolver) cautious(actor *PlayerState, ab *Ability) {
	actor.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	actor.addFeedback("You were cautious last night and didn't attack any roleblockers.")
}

func (r *nightResolver) protect(actor *PlayerState, ab *Ability, target *PlayerState, level int) error {
	target.raiseDefense(level)
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)

	switch {
	case target == actor:
		actor.addFeedback("You protected yourself last night.")
	case level == smithDefense:
		actor.addFeedback(fmt.Sprintf("You smithed a vest for **%s** last night.", target.Name))
	default:
		actor.addFeedback(fmt.Sprintf("You healed **%s** last night.", target.Name))
	}
	return nil
}

// order hands the kill to the Mafioso, or makes the Godfather do it when no
// Mafioso is free to act
func (r *nightResolver) order(actor *PlayerState, target *PlayerState) error {
	murder := Action{Ability: AbilityMurder, Args: []string{target.Name}}

	if mafioso := r.s.livingWithRole(RoleMafioso); mafioso != nil && !mafioso.IsRoleblocked {
		murder.Actor = mafioso.Name
		if r.requeue(murder) {
			mafioso.Visiting = target.Name
			mafioso.addFeedback(fmt.Sprintf("The Godfather ordered you to attack **%s**.", target.Name))
			actor.addFeedback(fmt.Sprintf("You ordered the Mafioso to attack **%s**.", target.Name))
			return nil
		}
	}

	murder.Actor = actor.Name
	if !r.requeue(murder) {
		return invariant("godfather %s could not requeue own murder", actor.Name)
	}
	actor.Visiting = target.Name
	actor.addFeedback(fmt.Sprintf("The mafioso wasn't able to attack **%s**, so you did it for them.", target.Name))
	return nil
}

func (r *nightResolver) frame(actor *PlayerState, ab *Ability, target *PlayerState) error {
	target.Perceived.Role = perceivedFramedAs
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	if target == actor {
		actor.addFeedback("You framed yourself last night.")
	} else {
		actor.addFeedback(fmt.Sprintf("You framed **%s** last night.", target.Name))
	}
	return nil
}

func (r *nightResolver) frameTarget(actor *PlayerState, ab *Ability) error {
	target, ok := r.s.players[actor.ExeTarget]
	if !ok || !target.Alive {
		actor.addFeedback("You had no target to frame.")
		return nil
	}
	return r.frame(actor, ab, target)
}

func (r *nightResolver) evaluate(actor *PlayerState, ab *Ability, target *PlayerState) error {
	if target.IsDoused {
		actor.addFeedback(fmt.Sprintf("**%s** seemed to be unclear.", target.Name))
	} else {
		perceived, ok := r.s.catalog.Role(target.Perceived.Role)
		if !ok {
			return invariant("%s is perceived as unknown role %q", target.Name, target.Perceived.Role)
		}
		if perceived.Faction == FactionMafia ||
			(perceived.Faction == FactionNeutral && perceived.Alignment == AlignKilling) {
			actor.addFeedback(fmt.Sprintf("**%s** seemed to be suspicious.", target.Name))
		} else {
			actor.addFeedback(fmt.Sprintf("**%s** seemed to be innocent.", target.Name))
		}
	}

	r.s.seeThrough(target)
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	return nil
}

func (r *nightResolver) track(actor *PlayerState, ab *Ability, target *PlayerState) error {
	visit := target.perceivedVisit()
	if visit == "" || visit == target.Name {
		actor.addFeedback(fmt.Sprintf("It looked like **%s** didn't visit anyone last night.", target.Name))
	} else {
		actor.addFeedback(fmt.Sprintf("It looked like **%s** visited **%s** last night.", target.Name, visit))
	}
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	return nil
}

func (r *nightResolver) lookout(actor *PlayerState, ab *Ability, target *PlayerState) error {
	var visitors []string
	for _, p := range r.s.seats() {
		if p == target || p == actor {
			continue
		}
		if p.perceivedVisit() == target.Name {
			visitors = append(visitors, "**"+p.Name+"**")
		}
	}

	if len(visitors) == 0 {
		actor.addFeedback(fmt.Sprintf("It looked like nobody visited **%s** last night.", target.Name))
	} else {
		actor.addFeedback(fmt.Sprintf("It looked like %s visited **%s** last night.", strings.Join(visitors, ", "), target.Name))
	}
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	return nil
}

func (r *nightResolver) investigate(actor *PlayerState, ab *Ability, target *PlayerState) error {
	actor.addFeedback(investigateMessage(target))
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	return nil
}

func investigateMessage(p *PlayerState) string {
	return fmt.Sprintf("**%s** seemed to be the role, **%s**.", p.Name, p.Perceived.Role)
}

// control forces target to use their first ability on into. Every way the
// control can fail is reported to the controller and changes nothing else.
func (r *nightResolver) control(actor *PlayerState, ab *Ability, target, into *PlayerState) error {
	failed := func() error {
		actor.addFeedback(fmt.Sprintf("You tried to control **%s**, but you were unable to.", target.Name))
		return nil
	}

	role, err := r.s.roleOf(target)
	if err != nil {
		return err
	}
	if len(role.Abilities) == 0 || role.Immune(ImmuneControl) {
		return failed()
	}
	forced, ok := r.s.catalog.Ability(role.Abilities[0])
	if !ok {
		return invariant("role %q lists unknown ability %q", role.Name, role.Abilities[0])
	}
	if forced.LimboOnly || forced.Uses == UsesNone || forced.Phase != PhaseNight {
		return failed()
	}
	if forced.Uses != UsesUnlimited && target.UsedCounts[forced.Name] >= forced.Uses {
		return failed()
	}
	players := forced.playerArgs()
	if players > 1 || len(forced.Args) > players {
		return failed()
	}

	if players == 1 && into == target && forced.Args[0].has(SubNotSelf) {
		return failed()
	}

	var args []string
	if players == 1 {
		args = []string{into.Name}
	}
	if !r.requeue(Action{Actor: target.Name, Ability: forced.Name, Args: args}) {
		return failed()
	}
	if players == 1 && forced.Args[0].has(SubVisiting) {
		target.Visiting = into.Name
	}

	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)
	target.addFeedback("You were controlled.")
	actor.addFeedback(fmt.Sprintf("You controlled **%s** into using their ability on **%s**.", target.Name, into.Name))
	actor.addFeedback(investigateMessage(target))
	return nil
}

// observe compares the current target with the last one the actor observed
func (r *nightResolver) observe(actor *PlayerState, ab *Ability, target *PlayerState) error {
	prevName := actor.LastObserved
	actor.LastObserved = target.Name
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)

	prev, ok := r.s.players[prevName]
	switch {
	case !ok:
		actor.addFeedback(fmt.Sprintf("You observed **%s**. Observe another player to learn if they are working together.", target.Name))
	case prev == target:
		actor.addFeedback(fmt.Sprintf("You observed **%s** again. They are the same person.", target.Name))
	default:
		together, err := r.s.workingTogether(prev, target)
		if err != nil {
			return err
		}
		if together {
			actor.addFeedback(fmt.Sprintf("**%s** and **%s** seem to be working together.", prev.Name, target.Name))
		} else {
			actor.addFeedback(fmt.Sprintf("**%s** and **%s** don't seem to be working together.", prev.Name, target.Name))
		}
		r.s.seeThrough(prev)
	}
	r.s.seeThrough(target)
	return nil
}

// workingTogether compares perceived roles: same faction for Mafia and Town,
// same role for neutrals
func (s *GameSession) workingTogether(a, b *PlayerState) (bool, error) {
	ra, ok := s.catalog.Role(a.Perceived.Role)
	if !ok {
		return false, invariant("%s is perceived as unknown role %q", a.Name, a.Perceived.Role)
	}
	rb, ok := s.catalog.Role(b.Perceived.Role)
	if !ok {
		return false, invariant("%s is perceived as unknown role %q", b.Name, b.Perceived.Role)
	}
	return ra.WinKey() == rb.WinKey(), nil
}

// replace runs after the attack effect of the same action and takes the
// victim's role when that attack landed
func (r *nightResolver) replace(actor *PlayerState, target *PlayerState) error {
	if !r.s.killedBy(target.Name, actor.Name) {
		return nil
	}
	role, err := r.s.roleOf(target)
	if err != nil {
		return err
	}
	actor.setRole(role)
	if role.Goal == GoalExecutioner {
		actor.ExeTarget = target.ExeTarget
	}
	target.Unidentifiable = true
	actor.addFeedback(fmt.Sprintf("You replaced **%s** and are now the **%s**.", target.Name, role.Name))
	return nil
}

func (r *nightResolver) kidnap(actor *PlayerState, ab *Ability, target *PlayerState) error {
	role, err := r.s.roleOf(target)
	if err != nil {
		return err
	}
	target.addLedger(ab.Name, actor.Name, r.s.daysPassed)

	if role.Immune(ImmuneRoleblock) {
		target.addFeedback("Someone attempted to roleblock you, but you were immune.")
	} else {
		r.block(target)
	}
	target.raiseDefense(kidnapDefense)
	target.IsMuted = true
	target.CanVote = false
	target.addFeedback("You were kidnapped. You can't talk or vote until tomorrow night.")
	actor.addFeedback(fmt.Sprintf("You kidnapped **%s** last night.", target.Name))

	if target.Attack > 0 {
		target.addFeedback("You attacked your kidnapper.")
		return r.attack(target, "", actor)
	}
	return nil
}

func (r *nightResolver) silenceCurse(actor *PlayerState) {
	r.s.silentCursed = true
	actor.addFeedback("You cursed the town with silence.")
}
