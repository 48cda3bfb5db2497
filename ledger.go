package main

// Flavor text attached to deaths that are not plain attacks
const (
	FlavorVigilanteGuilt = "They comitted suicide over the guilt of killing a town member."
	FlavorInactivity     = "They were smitten by the host for inactivity."
	FlavorLynched        = "They were lynched by the town."
	FlavorLeft           = "They left the game, committing suicide."
)

// Kill is one cause of a death
type Kill struct {
	Killer     string `json:"killer"`
	KillerRole string `json:"killer_role"`
	Flavor     string `json:"flavor,omitempty"`
	DeathNote  string `json:"death_note,omitempty"`
}

// Death is an announced death
type Death struct {
	Victim     string `json:"victim"`
	VictimRole string `json:"victim_role"`
	Kills      []Kill `json:"kills"`
	Lynched    bool   `json:"lynched,omitempty"`
	LastWill   string `json:"last_will,omitempty"` // empty when none was written or the victim is unidentifiable
}

// Killers returns the names of everyone who contributed to the death
func (d Death) Killers() []string {
	out := make([]string, 0, len(d.Kills))
	for _, k := range d.Kills {
		out = append(out, k.Killer)
	}
	return out
}

// DeathLedger collects deaths until they are announced. A victim appears at
// most once; later kills are merged into the existing entry.
type DeathLedger struct {
	deaths []Death
}

// Add records a kill, merging by victim
func (l *DeathLedger) Add(victim, victimRole string, kill Kill) {
	for i := range l.deaths {
		if l.deaths[i].Victim == victim {
			l.deaths[i].Kills = append(l.deaths[i].Kills, kill)
			return
		}
	}
	l.deaths = append(l.deaths, Death{Victim: victim, VictimRole: victimRole, Kills: []Kill{kill}})
}

// AddLynch records a lynch death
func (l *DeathLedger) AddLynch(victim, victimRole string) {
	l.Add(victim, victimRole, Kill{Killer: "Town", KillerRole: "Town", Flavor: FlavorLynched})
	for i := range l.deaths {
		if l.deaths[i].Victim == victim {
			l.deaths[i].Lynched = true
		}
	}
}

// Contains reports whether the victim is pending
func (l *DeathLedger) Contains(victim string) bool {
	for _, d := range l.deaths {
		if d.Victim == victim {
			return true
		}
	}
	return false
}

// Len is the number of pending deaths
func (l *DeathLedger) Len() int {
	return len(l.deaths)
}

// Flush returns the pending deaths and clears the ledger
func (l *DeathLedger) Flush() []Death {
	out := l.deaths
	l.deaths = nil
	return out
}
